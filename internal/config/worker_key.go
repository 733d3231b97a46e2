package config

type WorkerKeyStruct struct {
	CheatEventsQueue string
	RescoreQueue     string
}

var WorkerKey = &WorkerKeyStruct{
	CheatEventsQueue: "persist_cheat_events_queue",
	RescoreQueue:     "rescore_sessions_queue",
}
