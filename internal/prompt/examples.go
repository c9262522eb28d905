package prompt

import "strings"

// clarifyAskExamples demonstrates the reasoning-then-question format for the
// clarify-ask prompt.
const clarifyAskExamples = `/* some examples are provided */
/* example question: */
Which artist/group is most productive?
/* example previous clarification questions and user replies: */
clarification questions: How to rank artist/group productivity? a) rank by the number of records produced, b) rank by the total number of downloads, c) other (please specify).
user: b) rank by the total number of downloads
/* example reasoning and remaining ambiguity type */
It is clear that the SQL answer should use ORDER BY and LIMIT 1 based on the sum of total downloads. However, it is unclear what columns should be used to represent the 'artist/group'. Both the artist and the groupName columns contain information about 'artist/group'. 'AmbTableColumn' remains.
/* example clarification question */
mul_choice_cq = "Which columns represent the 'artist/group' information? a) the artist column only, b) the groupName column only, c) both the artist column and the groupName column, d) other (please specify)."

/* example question: */
Which Premier League matches ended in a draw in 2016?
/* example previous clarification questions and user replies: */
clarification questions: Is the year '2016' referring to? a) season is 2016, b) season is either 2015/2016 or 2016/2017, c) the date time is at year 2016, d) other (specify).
user: a) season is 2016
clarification questions: How to find the 'Premier league'? a) consider all leagues, b) consider only the league with name 'Premier League', c) other (specify).
user: b) consider only the league with name 'Premier League'
/* example reasoning and remaining ambiguity type */
It is clear that the SQL answer to this question needs to contain a WHERE clause for three conditions: 'Premier League', 'draw', and 'in 2016'. However, the question did not specify what fields should be contained in the output table. 'AmbOutput' remains.
/* example clarification question */
mul_choice_cq = "What fields represent the target 'matches'? a) all fields from football data table, b) the league column, c) other (specify)."

`

// clarifyAnswerExamples demonstrates answering a clarification question
// strictly from the gold query.
const clarifyAnswerExamples = `/* some examples are provided */
/* example question: */
How many acres burned in fires in California each year between 2000 and 2005?
/* example gold sql query */
SELECT SUM(FIRE_SIZE), FIRE_YEAR FROM Fires WHERE State = "CA" AND FIRE_YEAR BETWEEN 2000 AND 2005 GROUP BY FIRE_YEAR
/* example clarification question */
What information should the output table contain? a) two columns: the total acres burned and the year, b) one column: the total acres burned for each year, c) one column: the total acres burned across all target years, d) other (please specify).
/* example reasoning */
Output table is determined by the SELECT clause in the gold sql query. The gold query uses 'SELECT SUM(FIRE_SIZE), FIRE_YEAR'. As a result, the output table has two columns, the total acres burned and the year. Hence, choice a is correct.
/* example answer */
answer_to_cq = "a) two columns: the total acres burned and the year"

/* example question: */
Whose CDs sells best?
/* example gold sql query */
SELECT artist FROM torrents GROUP BY artist ORDER BY SUM(totalSnatched) DESC LIMIT 1
/* example clarification question */
Which column should be used to identify music related to 'CD'? a) groupName, b) tag, c) releaseType, d) other (please specify)
/* example reasoning */
The gold query does not use a WHERE clause to filter the CDs. Hence, the CD information is not contained in the tag column or the release type column. As a result, choice a, b, and c are all wrong.
/* example answer */
answer_to_cq = "d) Consider all music; No filter on 'CD'"

/* example question: */
Identify the players who weigh 120 kg.
/* example gold sql query */
SELECT T2.PlayerName FROM weight_info AS T1 INNER JOIN PlayerInfo AS T2 ON T1.weight_id = T2.weight WHERE T1.weight_in_kg = 120
/* example clarification question */
What fields should be contained in the output? a) one column of player name, b) one column of player id, c) two columns of player name and player ids, d) other (please specify).
/* example reasoning */
The gold query selects 'SELECT T2.PlayerName'. Hence, a is correct.
/* example answer */
answer_to_cq = "a) one column of player name"

`

// selfDebugShots are fixed demonstrations for the self-debug regeneration
// prompt, ordered so shot n contains the first n examples.
const selfDebugShotSource = `/* Given the following incorrect sql answers: */
SELECT creation, COUNT(*) FROM department GROUP BY creation ORDER BY COUNT(*) DESC LIMIT 1
/* Answer the following with no explanation: In which year were most departments established? */
SELECT creation FROM department GROUP BY creation ORDER BY COUNT(*) DESC LIMIT 1
-------
/* Given the following incorrect sql answers: */
SELECT customers.customer_name FROM customers JOIN orders ON customers.customer_id = orders.customer_id WHERE orders.order_status = "On Road" AND orders.order_status = "Shipped"
/* Answer the following with no explanation: Which customers have both "On Road" and "Shipped" as order status? List the customer names. */
SELECT customers.customer_name FROM customers JOIN orders ON customers.customer_id = orders.customer_id WHERE orders.order_status = "On Road" INTERSECT SELECT customers.customer_name FROM customers JOIN orders ON customers.customer_id = orders.customer_id WHERE orders.order_status = "Shipped"
-------
/* Given the following incorrect sql answers: */
SELECT COUNT(status) FROM city
/* How many different statuses do cities have? */
SELECT COUNT(DISTINCT status) FROM city
-------`

// SelfDebugShots returns cumulative few-shot prefixes for the self-debug
// prompt: element i holds the first i+1 fixed examples.
func SelfDebugShots() []string {
	parts := strings.Split(selfDebugShotSource, "-------")
	shots := make([]string, 0, 3)
	for i := 1; i <= 3 && i <= len(parts); i++ {
		shots = append(shots, strings.Join(parts[:i], "\n"))
	}
	return shots
}
