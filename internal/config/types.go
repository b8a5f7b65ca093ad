package config

import (
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const gemini3MinTemperature = 1.0

// 에이전트 실행 모드
const (
	ModeDisabled = "disabled"
	ModeRules    = "rules"
	ModeLLM      = "llm"
	ModeHybrid   = "hybrid"
)

// 결과 캐시 백엔드
const (
	CacheBackendMemory = "memory"
	CacheBackendValkey = "valkey"
)

// GeminiConfig: Gemini 모델 설정입니다.
type GeminiConfig struct {
	APIKeys          []string
	DefaultModel     string
	ClarifyModel     string
	Temperature      float64
	MaxOutputTokens  int
	ThinkingLevel    string
	MaxRetries       int
	RetryInitialMs   int
	TimeoutSeconds   int
	FailoverAttempts int
}

// PrimaryKey: 기본 API 키를 반환합니다.
func (g GeminiConfig) PrimaryKey() string {
	if len(g.APIKeys) == 0 {
		return ""
	}
	return g.APIKeys[0]
}

// ModelForTask: 작업 유형별 모델을 반환합니다.
func (g GeminiConfig) ModelForTask(task string) string {
	if task == "clarify" && g.ClarifyModel != "" {
		return g.ClarifyModel
	}
	return g.DefaultModel
}

// TemperatureForModel: 모델별 temperature 를 계산합니다.
// Gemini 3 계열은 1.0 미만을 허용하지 않습니다.
func (g GeminiConfig) TemperatureForModel(model string) float64 {
	if isGemini3(model) {
		if math.IsNaN(g.Temperature) || math.IsInf(g.Temperature, 0) {
			return gemini3MinTemperature
		}
		return math.Max(gemini3MinTemperature, g.Temperature)
	}
	return g.Temperature
}

// ClarifyConfig: 명확화 에이전트 설정입니다.
type ClarifyConfig struct {
	Mode            string
	MaxQuestions    int
	MaxInputRunes   int
	RulepacksDir    string
	DefaultLanguage string
	CacheEnabled    bool
	CacheBackend    string
	CacheURL        string
	CacheMaxSize    int
	CacheTTLSeconds int
	CacheCompress   bool
}

// NormalizedMode: 알 수 없는 모드는 hybrid 로 취급합니다.
func (c ClarifyConfig) NormalizedMode() string {
	switch strings.ToLower(strings.TrimSpace(c.Mode)) {
	case ModeDisabled, "off", "none":
		return ModeDisabled
	case ModeRules:
		return ModeRules
	case ModeLLM:
		return ModeLLM
	default:
		return ModeHybrid
	}
}

// GuardConfig: 입력 검증 설정입니다.
type GuardConfig struct {
	Enabled         bool
	Threshold       float64
	RulepacksDir    string
	CacheMaxSize    int
	CacheTTLSeconds int
}

// LoggingConfig: 로깅 설정입니다.
type LoggingConfig struct {
	Level      string
	LogDir     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// HTTPConfig: HTTP 서버 설정입니다.
type HTTPConfig struct {
	Host         string
	Port         int
	HTTP2Enabled bool
	GzipEnabled  bool
}

// GRPCConfig: gRPC 서버 설정입니다.
type GRPCConfig struct {
	Host    string
	Port    int
	Enabled bool
}

// HTTPAuthConfig: API 키 인증 설정입니다. gRPC 도 같은 키를 사용합니다.
type HTTPAuthConfig struct {
	APIKey   string
	Required bool
}

// HTTPRateLimitConfig: 요청 제한 설정입니다.
type HTTPRateLimitConfig struct {
	RequestsPerMinute int
	CacheSize         int
	CacheTTLSeconds   int
}

// DatabaseConfig: 사용량 DB 연결 및 저장 설정입니다.
type DatabaseConfig struct {
	Enabled                              bool
	Driver                               string
	Host                                 string
	Port                                 int
	Name                                 string
	User                                 string
	Password                             string
	SQLitePath                           string
	MinPool                              int
	MaxPool                              int
	ConnMaxLifetimeMinutes               int
	UsageBatchEnabled                    bool
	UsageBatchFlushIntervalSeconds       int
	UsageBatchFlushTimeoutSeconds        int
	UsageBatchMaxPendingRequests         int
	UsageBatchMaxBackoffSeconds          int
	UsageBatchErrorLogMaxIntervalSeconds int
}

// DSN: DB 접속 문자열을 반환합니다.
func (d DatabaseConfig) DSN() string {
	if d.IsSQLite() {
		return d.SQLitePath
	}
	host := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	u := &url.URL{
		Scheme: "postgresql",
		Host:   host,
		Path:   "/" + d.Name,
	}
	if d.Password == "" {
		u.User = url.User(d.User)
	} else {
		u.User = url.UserPassword(d.User, d.Password)
	}
	return u.String()
}

// IsSQLite: sqlite 드라이버 사용 여부입니다.
func (d DatabaseConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(d.Driver), "sqlite")
}

// TelemetryConfig: OpenTelemetry 설정입니다.
type TelemetryConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	OTLPInsecure   bool
	SampleRate     float64
}

// Config: 애플리케이션 전체 설정입니다.
type Config struct {
	Gemini        GeminiConfig
	Clarify       ClarifyConfig
	Guard         GuardConfig
	Logging       LoggingConfig
	HTTP          HTTPConfig
	GRPC          GRPCConfig
	HTTPAuth      HTTPAuthConfig
	HTTPRateLimit HTTPRateLimitConfig
	Database      DatabaseConfig
	Telemetry     TelemetryConfig
}
