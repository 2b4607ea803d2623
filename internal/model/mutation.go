package model

// OpType tags a replicated mutation. The set is closed: anything else on the
// wire is an invalid operation the receiver must reject explicitly.
type OpType byte

const (
	OpPut OpType = iota
	OpDelete
)

func (o OpType) Valid() bool {
	return o == OpPut || o == OpDelete
}

func (o OpType) String() string {
	switch o {
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Mutation is one applied write, as it travels from the primary's store to
// the replica. Seq equals the version the store assigned to the mutation:
// version order and replication order are the same order.
type Mutation struct {
	Seq       uint64
	Op        OpType
	Key       string
	Value     []byte // nil for OpDelete
	ExpiresAt uint64 // absolute Unix seconds; tombstones always carry one
}
