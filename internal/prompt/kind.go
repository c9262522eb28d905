package prompt

// Kind tags a rendered prompt with the request type it serves. The tag
// travels with the prompt as data; nothing re-derives it from the rendered
// text.
type Kind int

const (
	KindInitial Kind = iota
	KindFixInvalid
	KindSelfDebug
	KindClarifyAsk
	KindClarifyAnswer
	KindFeedback
	KindAmbiguityCheck
)

func (k Kind) String() string {
	switch k {
	case KindInitial:
		return "initial"
	case KindFixInvalid:
		return "fix_invalid"
	case KindSelfDebug:
		return "self_debug"
	case KindClarifyAsk:
		return "clarify_ask"
	case KindClarifyAnswer:
		return "clarify_answer"
	case KindFeedback:
		return "feedback"
	case KindAmbiguityCheck:
		return "ambiguity_check"
	default:
		return "unknown"
	}
}

// Request is a rendered prompt plus its kind tag.
type Request struct {
	Kind Kind
	Text string
}
