package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Mailbox ingestion run, every five minutes
	CronScheduleFetchEmails string `env:"CRON_SCHEDULE_FETCH_EMAILS" envDefault:"0 */5 * * * *"`
}
