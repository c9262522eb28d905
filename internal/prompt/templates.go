// Package prompt renders the prompt variants used by the refinement loop
// and parses the structured fragments of model replies.
package prompt

import (
	"fmt"
	"strings"
)

// Exchange is one clarification question and the user (oracle) answer to it.
type Exchange struct {
	Question string
	Answer   string
}

// Example is one few-shot demonstration pair.
type Example struct {
	Question string
	SQL      string
}

// NoAmbiguityToken is the literal the clarify-ask template instructs the
// model to emit when no ambiguity remains.
const NoAmbiguityToken = "NO AMBIGUITY"

const initialHeader = "Complete sqlite SQL query only and with no explanation.\n"

// Initial renders the first-round generation prompt from schema text,
// optional few-shot examples, and derived metadata constraints.
func Initial(question, schema, examples string) Request {
	meta := MetadataConstraints(question, schema)
	text := initialHeader +
		examples +
		"/* Given the following database schema: */\n" + schema + "\n" +
		meta + "\n" +
		"/* Answer the following with no explanation: " + question + " */"
	return Request{Kind: KindInitial, Text: text}
}

const fixInvalidTemplate = `/* Given the following database schema: */
%s
/* And the following inexecutable sql query */
%s
/* And the following exception message */
%s

/* Fix the exception and write a new executable SQL query with no explanation */
/* Output ONLY SQL wrapped in a markdown block: ` + "```sql" + ` */
`

// FixInvalid renders the one-shot syntax repair prompt around the failing
// SQL and its first execution error.
func FixInvalid(schema, invalidSQL, execError string) Request {
	return Request{
		Kind: KindFixInvalid,
		Text: fmt.Sprintf(fixInvalidTemplate, schema, invalidSQL, execError),
	}
}

const selfDebugTemplate = `/* Given the following database schema: */
%s
/* And the following incorrect sql answers: */
%s

%s
/* Answer the following with no explanation: %s */
/* Output ONLY SQL wrapped in a markdown block: ` + "```sql" + ` */
`

// SelfDebug renders the regeneration prompt carrying the deduplicated
// history of prior incorrect SQL.
func SelfDebug(question, schema string, priorSQL []string, examples string) Request {
	meta := MetadataConstraints(question, schema)
	text := fmt.Sprintf(selfDebugTemplate, schema, strings.Join(priorSQL, "\n"), meta, question)
	if examples != "" {
		text = examples + text
	}
	return Request{Kind: KindSelfDebug, Text: text}
}

const feedbackTemplate = `/* Given the following database schema: */
%s
/* And the following incorrect sql answers: */
%s
/* And the following clarification questions and user replies: */
%s
%s
/* Answer the following with no explanation: %s */
/* Output ONLY SQL wrapped in a markdown block: ` + "```sql" + ` */
`

// Feedback renders the regeneration prompt that folds clarification
// exchanges back into SQL generation.
func Feedback(question, schema string, priorSQL []string, exchanges []Exchange) Request {
	meta := MetadataConstraints(question, schema)
	text := fmt.Sprintf(feedbackTemplate,
		schema, strings.Join(priorSQL, ";\n"), FormatExchanges(exchanges), meta, question)
	return Request{Kind: KindFeedback, Text: text}
}

const clarifyAskTemplate = `/* Ask the user a new multiple choice clarification question to help you find the correct SQL answer for the following question: */
%s
/* Given the following database schema: */
%s
/* And the following incorrect sql answers: */
%s
/* And the following previous clarification questions and user replies: */
%s

/* Consider the following ambiguity categories:
    - AmbQuestion: Is the question itself ambiguous?
    - AmbTableColumn: Is there ambiguity in mapping the entities from the QUESTION to tables and columns in the DATABASE SCHEMA?
    - AmbOutput: What fields and how many fields should be included in the output table?
    - AmbValue: What predicate value should be used to filter results?
*/

/* The clarification question should be easy to understand for people with no coding experience. */

/* Let's think step by step to generate the helpful multiple choice clarification question.
1. Summarize the clear information based on previous clarification questions and incorrect queries.
2. Evaluate whether AmbQuestion, AmbTableColumn, AmbOutput, and AmbValue remain in formulating an SQL query, considering each category individually.
3. If no remaining ambiguities are identified, then output "NO AMBIGUITY".
   Else, ask a new multiple-choice question to address the remaining ambiguities and assist in identifying the correct SQL query. Use format: mul_choice_cq = "".
4. Prioritize granularity alignment and valid join keys; avoid suggesting joins across incompatible levels (e.g., district vs state) or metrics that cannot be computed at a common grain.
*/
`

// ClarifyAsk renders the clarification-question prompt over the incorrect
// SQL history and prior exchanges.
func ClarifyAsk(question, schema string, priorSQL []string, exchanges []Exchange) Request {
	text := clarifyAskExamples + fmt.Sprintf(clarifyAskTemplate,
		question, schema, strings.Join(priorSQL, ";\n"), FormatExchanges(exchanges))
	return Request{Kind: KindClarifyAsk, Text: text}
}

const clarifyAnswerTemplate = `/* Given the following Natural Language Question: */
%s
/* And the following Gold Query: */
%s
/* Answer the following multiple choice clarification question truthfully based on the Gold Query: */
%s

/* Follow these steps:
1. Identify which portion of the Gold Query answers the clarification question.
2. Evaluate the correctness of each multiple choice answer based only on the Gold Query.
3. If none of the choices are correct or you select "other (please specify)", provide a short answer for the clarification question.
4. Output the final answer in the format: answer_to_cq = "".

Let's proceed step by step. */
/* Only use information from the Gold Query; do not guess.
   Prefer answers that maintain consistent granularity and valid join semantics. */
`

// ClarifyAnswer renders the oracle prompt that answers a clarification
// question strictly from the reference query.
func ClarifyAnswer(question, goldSQL, clarification string) Request {
	text := clarifyAnswerExamples + fmt.Sprintf(clarifyAnswerTemplate, question, goldSQL, clarification)
	return Request{Kind: KindClarifyAnswer, Text: text}
}

const ambiguityTemplate = `/* Given the following database schema: */
%s
/* And the following Natural Language Question: */
%s

/* Task: Determine if the question is ambiguous given the schema.
   Ambiguity can arise from:
   - AmbQuestion: The question phrasing is unclear.
   - AmbTableColumn: Unclear mapping to tables/columns.
   - AmbOutput: Unclear what columns to output.
   - AmbValue: Unclear predicate values.

   Answer "Yes" if the question is ambiguous, or "No" if it is clear.
   Provide a brief reason.
*/
Is the question ambiguous? Answer: `

// AmbiguityCheck renders the yes/no ambiguity classification prompt.
func AmbiguityCheck(question, schema string) Request {
	return Request{
		Kind: KindAmbiguityCheck,
		Text: fmt.Sprintf(ambiguityTemplate, schema, question),
	}
}

const examplesHeader = "/* some examples are provided */\n"

// FormatExamples renders retrieved exemplars as a few-shot block; empty
// input renders nothing.
func FormatExamples(examples []Example) string {
	if len(examples) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(examples))
	for _, ex := range examples {
		if ex.Question == "" || ex.SQL == "" {
			continue
		}
		blocks = append(blocks,
			fmt.Sprintf("/* Example */\n/* Question: %s */\n/* SQL: */\n%s", ex.Question, ex.SQL))
	}
	if len(blocks) == 0 {
		return ""
	}
	return examplesHeader + strings.Join(blocks, "\n\n") + "\n\n"
}

// FormatExchanges renders accumulated clarification exchanges for prompt
// embedding.
func FormatExchanges(exchanges []Exchange) string {
	if len(exchanges) == 0 {
		return "no previous clarification question.\n"
	}
	var sb strings.Builder
	for _, e := range exchanges {
		sb.WriteString("multiple choice clarification question: " + e.Question + "\n")
		sb.WriteString("user: " + e.Answer + "\n")
	}
	return sb.String()
}

// MetadataConstraints derives the constraint block injected into generation
// prompts. The constraints steer the model toward executable SQL with
// consistent granularity and valid join keys.
func MetadataConstraints(question, schema string) string {
	cons := []string{
		"Constraints: SQL must be executable on the given schema and use a single consistent granularity across tables.",
		"When tables differ in granularity, aggregate to a common key before joining; do not join district/school rows directly to state-level aggregates.",
		"Use only valid join keys present in the schema with matching types; prefer exact equality joins.",
		"If feedback conflicts with these constraints, follow the constraints.",
	}
	lines := make([]string, len(cons))
	for i, c := range cons {
		lines[i] = "/* " + c + " */"
	}
	return strings.Join(lines, "\n")
}
