package temporalx

import (
	"strings"
	"time"

	"github.com/yungbote/askflow-backend/internal/pkg/envutil"
	"github.com/yungbote/askflow-backend/internal/pkg/logger"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	AutoRegisterNamespace  bool
	NamespaceRetentionDays int

	DialTimeout    time.Duration
	DialMaxWait    time.Duration
	DialBackoff    time.Duration
	DialBackoffMax time.Duration

	WorkerConcurrency int

	// SweepWorkflowID is the fixed id of the long-running pipeline_sweep workflow; empty
	// disables starting it from this process.
	SweepWorkflowID string
	SweepInterval   time.Duration
	SweepStages     []string
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", "", log),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "askflow", log),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "askflow", log),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", "", log),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", "", log),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", "", log),

		AutoRegisterNamespace:  envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false, log),
		NamespaceRetentionDays: envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7, log),

		DialTimeout:    envutil.Duration("TEMPORAL_DIAL_TIMEOUT", 5*time.Second, log),
		DialMaxWait:    envutil.Duration("TEMPORAL_DIAL_MAX_WAIT", 60*time.Second, log),
		DialBackoff:    envutil.Duration("TEMPORAL_DIAL_BACKOFF", 250*time.Millisecond, log),
		DialBackoffMax: envutil.Duration("TEMPORAL_DIAL_BACKOFF_MAX", 5*time.Second, log),

		WorkerConcurrency: envutil.Int("TEMPORAL_WORKER_CONCURRENCY", 4, log),

		SweepWorkflowID: envutil.String("TEMPORAL_SWEEP_WORKFLOW_ID", "askflow-pipeline-sweep", log),
		SweepInterval:   envutil.Duration("TEMPORAL_SWEEP_INTERVAL", time.Minute, log),
		SweepStages:     splitList(envutil.String("TEMPORAL_SWEEP_STAGES", "", log)),
	}
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Address) != "" }

func (c Config) mTLS() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
