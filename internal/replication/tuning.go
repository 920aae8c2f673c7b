package replication

// Tuning holds the parameters accepted by the tune_replication RPC:
// the source address and timestamp to resume shipping from. Applying
// it is left to whatever external update-log shipper the deployment
// runs; this core only records the intent.
type Tuning struct {
	SourceAddr string
	StartTS    uint64
}
