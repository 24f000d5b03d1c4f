package watermark

// State tracks where an embedding flow is in its pipeline. Secure flows
// run every state in order; the legacy flow skips Fingerprinting and
// TokenIssuing, and the pre-registration flow stops after TokenIssuing
// until a payload symbol is available.
type State int

const (
	StateIdle State = iota
	StateFingerprinting
	StateTokenIssuing
	StateCapacityChecking
	StateEmbedding
	StateQualityScoring
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFingerprinting:
		return "fingerprinting"
	case StateTokenIssuing:
		return "token_issuing"
	case StateCapacityChecking:
		return "capacity_checking"
	case StateEmbedding:
		return "embedding"
	case StateQualityScoring:
		return "quality_scoring"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
