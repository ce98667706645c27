package config

// Config is the full process configuration. Secrets may be written as
// ${ENV_VAR} references; they are expanded at load time.
//
// All durations are Go duration strings (e.g. "30s", "10m", "1h").
type Config struct {
	General   GeneralConfig   `json:"general"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	GitHub    GitHubConfig    `json:"github"`
	Forge     ForgeConfig     `json:"forge"`
	Reddit    RedditConfig    `json:"reddit"`
	RSS       RSSConfig       `json:"rss"`
	Triage    TriageConfig    `json:"triage"`
	Notify    NotifyConfig    `json:"notify"`
}

type GeneralConfig struct {
	DatabasePath string `json:"database_path"`

	// FirstRunNotify disables first-run suppression: a watcher's very first
	// successful cycle will announce every discovered item. Default false to
	// avoid a notification storm when attaching to pre-existing history.
	FirstRunNotify bool `json:"first_run_notify,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"` // nil defaults to true
	File    struct {
		Enabled bool   `json:"enabled,omitempty"`
		Path    string `json:"path,omitempty"`
	} `json:"file,omitempty"`
}

// SchedulerConfig controls run execution.
//
// Defaults: workers 2, queue_size 64, misfire_grace "5m".
type SchedulerConfig struct {
	Workers      int    `json:"workers,omitempty"`
	QueueSize    int    `json:"queue_size,omitempty"`
	MisfireGrace string `json:"misfire_grace,omitempty"`
}

type GitHubConfig struct {
	Enabled       bool     `json:"enabled"`
	Token         string   `json:"token,omitempty"`
	Owner         string   `json:"owner,omitempty"`
	Repos         []string `json:"repos,omitempty"`
	CheckInterval string   `json:"check_interval,omitempty"` // default "60m"
}

type ForgeMod struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
	Slug string `json:"slug"`
}

type ForgeConfig struct {
	Enabled       bool       `json:"enabled"`
	Email         string     `json:"email,omitempty"`
	Password      string     `json:"password,omitempty"`
	Mods          []ForgeMod `json:"mods,omitempty"`
	CheckInterval string     `json:"check_interval,omitempty"` // default "60m"
}

type RedditConfig struct {
	Enabled       bool   `json:"enabled"`
	ClientID      string `json:"client_id,omitempty"`
	ClientSecret  string `json:"client_secret,omitempty"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
	Subreddit     string `json:"subreddit,omitempty"`
	CheckInterval string `json:"check_interval,omitempty"` // default "30m"
}

type RSSConfig struct {
	Enabled       bool     `json:"enabled"`
	Feeds         []string `json:"feeds,omitempty"`
	CheckInterval string   `json:"check_interval,omitempty"` // default "30m"
}

type TriageConfig struct {
	APIKey string `json:"api_key,omitempty"`
	Model  string `json:"model,omitempty"`
}

type NotifyConfig struct {
	SMTP struct {
		Server     string `json:"server,omitempty"` // default smtp.gmail.com
		Port       int    `json:"port,omitempty"`   // default 587
		Email      string `json:"email,omitempty"`
		Password   string `json:"password,omitempty"`
		Recipient  string `json:"recipient,omitempty"`
		SMSGateway string `json:"sms_gateway,omitempty"`
	} `json:"smtp,omitempty"`
	Telegram struct {
		Token  string `json:"token,omitempty"`
		ChatID int64  `json:"chat_id,omitempty"`
	} `json:"telegram,omitempty"`

	RatePerMin  int    `json:"rate_per_min,omitempty"` // default 30
	SendTimeout string `json:"send_timeout,omitempty"` // default "30s"
}

// ConsoleEnabled resolves the tri-state console flag.
func (l LoggingConfig) ConsoleEnabled() bool {
	return l.Console == nil || *l.Console
}
