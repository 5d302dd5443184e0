// Package settings loads scheduler and worker startup configuration
// from environment variables, with sane defaults, the way cmd/gastrolog
// resolves its own flags before wiring components together.
package settings

import (
	"fmt"
	"os"
	"strconv"

	petname "github.com/dustinkirkland/golang-petname"
)

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// Scheduler holds the scheduler process's startup configuration. The
// scheduler only publishes to the broker (via ingest); it has no chunk
// consumer of its own, so it needs no consumer group setting.
type Scheduler struct {
	HTTPAddr        string // ingest HTTP surface (upload/download)
	RPCAddr         string // schedulerrpc surface (heartbeat/assign)
	DatabasePath    string // sqlite metadata database path
	BrokerAddrs     []string
	BrokerTopic     string
	LivenessTimeout string // duration string, e.g. "5s"
	ReaperPeriod    string
}

// LoadScheduler reads scheduler settings from the environment.
func LoadScheduler() Scheduler {
	return Scheduler{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		RPCAddr:         getenv("RPC_ADDR", ":6000"),
		DatabasePath:    getenv("DATABASE_PATH", "app/metadata/filemesh.db"),
		BrokerAddrs:     splitCSV(getenv("BROKER_ADDRS", "localhost:9092")),
		BrokerTopic:     getenv("BROKER_TOPIC", "fileChunksQueue"),
		LivenessTimeout: getenv("LIVENESS_TIMEOUT", "5s"),
		ReaperPeriod:    getenv("REAPER_PERIOD", "5s"),
	}
}

// Worker holds a worker process's startup configuration.
type Worker struct {
	WorkerID          string
	Host              string
	Port              string
	SchedulerHost     string
	SchedulerPort     string
	StorageRoot       string
	StorageBackend    string // "local" (default), "s3", "gcs", "azblob"
	StorageBucket     string
	AzureAccountURL   string
	AzureContainer    string
	StorageCompressed bool
	HeartbeatPeriod   string
	brokerAddrs       []string
	BrokerTopic       string
	ConsumerGroup     string
}

// LoadWorker reads worker settings from the environment. WORKER_ID
// defaults to a generated petname so a worker can start without any
// configuration beyond where to find the scheduler.
func LoadWorker() Worker {
	workerID := getenv("WORKER_ID", "")
	if workerID == "" {
		workerID = petname.Generate(2, "-")
	}

	return Worker{
		WorkerID:          workerID,
		Host:              getenv("HOST", "localhost"),
		Port:              getenv("PORT", "6001"),
		SchedulerHost:     getenv("SCHEDULER_HOST", "localhost"),
		SchedulerPort:     getenv("SCHEDULER_PORT", "6000"),
		StorageRoot:       getenv("STORAGE_ROOT", fmt.Sprintf("app/storage/%s", workerID)),
		StorageBackend:    getenv("STORAGE_BACKEND", "local"),
		StorageBucket:     getenv("STORAGE_BUCKET", ""),
		AzureAccountURL:   getenv("STORAGE_AZURE_ACCOUNT_URL", ""),
		AzureContainer:    getenv("STORAGE_AZURE_CONTAINER", ""),
		StorageCompressed: getenv("STORAGE_COMPRESSION", "none") == "zstd",
		HeartbeatPeriod:   getenv("HEARTBEAT_PERIOD", "2s"),
		brokerAddrs:       splitCSV(getenv("BROKER_ADDRS", "localhost:9092")),
		BrokerTopic:       getenv("BROKER_TOPIC", "fileChunksQueue"),
		ConsumerGroup:     getenv("CONSUMER_GROUP", "filemesh-workers"),
	}
}

// BrokerAddrs returns the broker seed addresses this worker consumes
// chunk placements from.
func (w Worker) BrokerAddrs() []string {
	return w.brokerAddrs
}

// Address returns host:port for this worker, as advertised to the
// scheduler in heartbeats.
func (w Worker) Address() string {
	return w.Host + ":" + w.Port
}

// SchedulerAddress returns host:port for the scheduler RPC surface
// this worker reports to and is assigned chunks through.
func (w Worker) SchedulerAddress() string {
	return w.SchedulerHost + ":" + w.SchedulerPort
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
