package config

type AppConfig struct {
	APIPort     string `env:"PORT" envDefault:"8000"`
	APIKey      string `env:"API_KEY"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

type IMAPConfig struct {
	Server      string `env:"IMAP_SERVER" envDefault:"imap.gmail.com"`
	Port        int    `env:"IMAP_PORT" envDefault:"993"`
	Username    string `env:"IMAP_USERNAME,required"`
	Password    string `env:"IMAP_PASSWORD,required"`
	Folder      string `env:"IMAP_FOLDER" envDefault:"INBOX"`
	FetchLimit  int    `env:"IMAP_FETCH_LIMIT" envDefault:"50"`
	MarkSeen    bool   `env:"IMAP_MARK_SEEN" envDefault:"true"`
	FetchWindow int    `env:"IMAP_FETCH_WINDOW_DAYS" envDefault:"7"`
}

type AIConfig struct {
	APIBase        string `env:"AI_API_BASE" envDefault:"https://api.openai.com/v1"`
	APIKey         string `env:"AI_API_KEY,required"`
	Model          string `env:"AI_MODEL" envDefault:"gpt-4o-mini"`
	TimeoutSeconds int    `env:"AI_TIMEOUT_SECONDS" envDefault:"60"`
	MaxRetries     int    `env:"AI_MAX_RETRIES" envDefault:"2"`
}

type R2StorageConfig struct {
	AccountID        string `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
	AccessKeyID      string `env:"CLOUDFLARE_R2_ACCESS_KEY_ID"`
	AccessKeySecret  string `env:"CLOUDFLARE_R2_ACCESS_KEY_SECRET"`
	AttachmentBucket string `env:"BUCKET_NAME_ATTACHMENT" envDefault:"attachments"`
}
