package config

type WorkerKeyStruct struct {
	DirtySyncSessions string
	LedgerEventsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	DirtySyncSessions: "sync_dirty_sessions",
	LedgerEventsQueue: "ledger_events_queue",
}
