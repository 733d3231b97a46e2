package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionPaperKey returns the cache key for a session's sanitized question paper
func (r *CacheKeyStruct) SessionPaperKey(sessionID string) string {
	return fmt.Sprintf("session:%s:paper", sessionID)
}

// SessionMonitorChannel returns the Redis PubSub channel for a single session's live events
func (r *CacheKeyStruct) SessionMonitorChannel(sessionID string) string {
	return fmt.Sprintf("session:%s:monitor", sessionID)
}

// MonitorChannel returns the Redis PubSub channel that carries every session's live events
func (r *CacheKeyStruct) MonitorChannel() string {
	return "monitor:sessions"
}

var CacheKey = NewCacheKeyStruct()
