package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env            string
	HttpAddr       string
	JwtKey         []byte
	AllowedOrigins []string

	StoreRegion    string
	RequestsBucket string
	RequestsPrefix string
	VotesBucket    string
	VotesKey       string
	VotesLocalPath string

	HubEndpoint string

	CacheTTL             time.Duration
	QueueRefreshInterval time.Duration
	VoteSyncInterval     time.Duration
	RemoteCallTimeout    time.Duration

	SubmClaimsTable string // optional DynamoDB table
	EvalJobsSqsUrl  string // optional

	PolicyFile string
}

// LoadFromEnv reads the configuration from the process environment.
// Call godotenv.Load beforehand to pick up a .env file.
func LoadFromEnv() (*Config, error) {
	c := &Config{
		Env:            getEnv("ENV", "dev"),
		HttpAddr:       getEnv("HTTP_ADDR", ":8080"),
		JwtKey:         []byte(os.Getenv("JWT_KEY")),
		StoreRegion:    getEnv("STORE_REGION", "eu-central-1"),
		RequestsBucket: os.Getenv("REQUESTS_BUCKET"),
		RequestsPrefix: getEnv("REQUESTS_PREFIX", "requests/"),
		VotesKey:       getEnv("VOTES_KEY", "votes/votes_data.jsonl"),
		VotesLocalPath: getEnv("VOTES_LOCAL_PATH", ".cache/votes/votes_data.jsonl"),
		HubEndpoint:    getEnv("HUB_ENDPOINT", "https://huggingface.co"),

		SubmClaimsTable: os.Getenv("SUBM_CLAIMS_TABLE"),
		EvalJobsSqsUrl:  os.Getenv("EVAL_JOBS_SQS_URL"),
		PolicyFile:      os.Getenv("POLICY_FILE"),
	}
	c.VotesBucket = getEnv("VOTES_BUCKET", c.RequestsBucket)
	for _, origin := range strings.Split(os.Getenv("CORS_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			c.AllowedOrigins = append(c.AllowedOrigins, origin)
		}
	}

	var err error
	if c.CacheTTL, err = getSeconds("CACHE_TTL", 300); err != nil {
		return nil, err
	}
	if c.QueueRefreshInterval, err = getSeconds("QUEUE_REFRESH_INTERVAL", int(c.CacheTTL.Seconds())); err != nil {
		return nil, err
	}
	if c.VoteSyncInterval, err = getSeconds("VOTE_SYNC_INTERVAL", 300); err != nil {
		return nil, err
	}
	if c.RemoteCallTimeout, err = getSeconds("REMOTE_CALL_TIMEOUT", 30); err != nil {
		return nil, err
	}

	if c.RequestsBucket == "" {
		return nil, fmt.Errorf("REQUESTS_BUCKET is not set")
	}
	if len(c.JwtKey) == 0 {
		return nil, fmt.Errorf("JWT_KEY is not set")
	}
	return c, nil
}

func getEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getSeconds(key string, def int) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return time.Duration(def) * time.Second, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive number of seconds, got %q", key, v)
	}
	return time.Duration(n) * time.Second, nil
}
