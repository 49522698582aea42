package app

import (
	"context"
	"fmt"
	"time"

	"coderefactor/internal/shared/util"
)

type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components"`
}

type HealthService struct {
	session *Session
}

func NewHealthService(session *Session) *HealthService {
	return &HealthService{session: session}
}

// Session returns the session being checked.
func (s *HealthService) Session() *Session {
	return s.session
}

func (s *HealthService) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:     "up",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]string),
	}
	if err := ctx.Err(); err != nil {
		status.Status = "down"
		status.Components["context"] = err.Error()
		return status
	}
	sess := s.session
	if sess == nil {
		status.Status = "down"
		status.Components["session"] = "missing"
		return status
	}

	if sess.Parser != nil {
		status.Components["parser"] = "ok"
	} else {
		status.Status = "degraded"
		status.Components["parser"] = "missing"
	}

	if sess.Registry != nil {
		status.Components["adapters"] = fmt.Sprintf("ok (%d registered)", len(sess.Registry.Names()))
	} else {
		status.Status = "degraded"
		status.Components["adapters"] = "missing"
	}

	if sess.history != nil {
		status.Components["history"] = "ok"
	} else if sess.Config.DB.Enabled {
		status.Status = "degraded"
		status.Components["history"] = "missing but enabled in config"
	}

	if sess.oracleOn {
		status.Components["oracle"] = "ok"
	} else if sess.Config.Oracle.Enabled {
		status.Status = "degraded"
		status.Components["oracle"] = "missing but enabled in config"
	}

	status.Components["heap"] = fmt.Sprintf("%d MB", util.HeapAllocMB())
	return status
}
