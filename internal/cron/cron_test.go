package cron

import (
	"os"
	"testing"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"k8s.io/client-go/kubernetes"

	"github.com/enquira/mailtriage/config"
	cron_config "github.com/enquira/mailtriage/internal/cron/config"
	"github.com/enquira/mailtriage/internal/logger"
)

type mockKubernetesInterface struct {
	kubernetes.Interface
	mock.Mock
}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func TestNewCronManager(t *testing.T) {
	// Arrange
	cfg := &config.Config{
		Logger: &logger.Config{
			LogLevel: "info",
		},
	}
	log := getLogger()
	k8s := &mockKubernetesInterface{}

	// Act
	cm := NewCronManager(cfg, log, k8s, nil)

	// Assert
	assert.NotNil(t, cm)
	assert.Equal(t, cfg, cm.cfg)
	assert.Equal(t, log, cm.log)
	assert.Equal(t, k8s, cm.k8s)
	assert.NotNil(t, cm.jobIDs)
}

func TestCronManager_RegisterJobs(t *testing.T) {
	// Set environment variable for testing
	os.Setenv("CRON_SCHEDULE_HEARTBEAT", "0 * * * * *")
	os.Setenv("CRON_SCHEDULE_FETCH_EMAILS", "0 */5 * * * *")
	defer os.Unsetenv("CRON_SCHEDULE_HEARTBEAT")
	defer os.Unsetenv("CRON_SCHEDULE_FETCH_EMAILS")

	// Arrange
	cfg := &config.Config{
		Logger: &logger.Config{
			LogLevel: "info",
		},
	}
	log := getLogger()
	cm := NewCronManager(cfg, log, nil, nil)

	c := cronv3.New(cronv3.WithSeconds())
	cm.registerJobs(c)

	// Assert
	assert.Contains(t, cm.jobIDs, "heartbeat")
	assert.Contains(t, cm.jobIDs, "fetch_emails")
	assert.Len(t, c.Entries(), 2)
}

func TestCronManager_StartAndStopLocalMode(t *testing.T) {
	// Arrange
	cfg := &config.Config{
		Logger: &logger.Config{
			LogLevel: "info",
		},
	}
	log := getLogger()
	cm := NewCronManager(cfg, log, nil, nil)

	// Act
	err := cm.Start("test-pod", "default")

	// Assert
	assert.NoError(t, err)
	assert.NotNil(t, cm.cron)

	cm.Stop()

	select {
	case <-cm.stopCh:
		// closed as expected
	default:
		t.Fatal("stop channel should be closed")
	}
}

func TestCronConfigDefaults(t *testing.T) {
	var cronConfig cron_config.Config
	err := env.Parse(&cronConfig)

	assert.NoError(t, err)
	assert.Equal(t, "0 * * * * *", cronConfig.CronScheduleHeartbeat)
	assert.Equal(t, "0 */5 * * * *", cronConfig.CronScheduleFetchEmails)
}
