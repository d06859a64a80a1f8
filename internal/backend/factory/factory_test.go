package factory

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/drive/v3"
	storage "google.golang.org/api/storage/v1"

	"github.com/dl-alexandre/syncapp/internal/backend"
	"github.com/dl-alexandre/syncapp/internal/backend/gcs"
	"github.com/dl-alexandre/syncapp/internal/backend/gdrive"
	"github.com/dl-alexandre/syncapp/internal/backend/local"
	s3backend "github.com/dl-alexandre/syncapp/internal/backend/s3"
	"github.com/dl-alexandre/syncapp/internal/backend/ssh"
	"github.com/dl-alexandre/syncapp/internal/config"
	tu "github.com/dl-alexandre/syncapp/internal/testing"
	"github.com/dl-alexandre/syncapp/internal/testing/mocks"
	"github.com/dl-alexandre/syncapp/internal/utils"
)

type nopRunner struct{}

func (nopRunner) Run(context.Context, string, ...string) ([]byte, error) { return nil, nil }

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.GDriveTokenPath = t.TempDir()
	return cfg
}

func testServices(t *testing.T, driveCalls *int) Services {
	driveSrv := mocks.NewDriveServer(t)
	gcsSrv := mocks.NewGCSServer(t)
	return Services{
		S3: func(context.Context) (s3backend.API, error) {
			return s3.New(s3.Options{Region: "us-east-1"}), nil
		},
		Storage: func(context.Context) (*storage.Service, error) {
			return gcsSrv.Service(t), nil
		},
		Drive: func(_ context.Context, session string) (*drive.Service, error) {
			*driveCalls++
			return driveSrv.Service(t), nil
		},
		Runner: nopRunner{},
	}
}

func TestFromURL(t *testing.T) {
	var driveCalls int
	f := New(testConfig(t), mocks.NewStore(), testServices(t, &driveCalls), nil)
	dir := t.TempDir()

	tests := []struct {
		url   string
		check func(backend.Adapter) bool
	}{
		{"file://" + dir, func(a backend.Adapter) bool { _, ok := a.(*local.Adapter); return ok }},
		{"s3://bucket/prefix", func(a backend.Adapter) bool { _, ok := a.(*s3backend.Adapter); return ok }},
		{"gs://bucket/prefix", func(a backend.Adapter) bool { _, ok := a.(*gcs.Adapter); return ok }},
		{"gdrive://user@gmail.com/My%20Drive", func(a backend.Adapter) bool { _, ok := a.(*gdrive.Adapter); return ok }},
		{"ssh://u@host:2222/srv", func(a backend.Adapter) bool { _, ok := a.(*ssh.Adapter); return ok }},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			a, err := f.FromURL(tu.TestContext(), tt.url)
			tu.AssertNoError(t, err)
			if !tt.check(a) {
				t.Errorf("FromURL(%q) = %T", tt.url, a)
			}
		})
	}
}

func TestFromURLRejectsUnknownSchemes(t *testing.T) {
	var driveCalls int
	f := New(testConfig(t), mocks.NewStore(), testServices(t, &driveCalls), nil)
	for _, raw := range []string{"ftp://host/x", "onedrive://me/x", "::bad"} {
		_, err := f.FromURL(tu.TestContext(), raw)
		if code := utils.AsCLIError(err).Code; code != utils.ErrCodeInvalidURL {
			t.Errorf("FromURL(%q) code = %s, want INVALID_URL", raw, code)
		}
	}
}

func TestDriveServicesAreMemoizedPerSession(t *testing.T) {
	var driveCalls int
	f := New(testConfig(t), mocks.NewStore(), testServices(t, &driveCalls), nil)
	for _, raw := range []string{
		"gdrive://a@gmail.com/My%20Drive",
		"gdrive://a@gmail.com/My%20Drive/docs",
		"gdrive://b@gmail.com/My%20Drive",
	} {
		_, err := f.FromURL(tu.TestContext(), raw)
		tu.AssertNoError(t, err)
	}
	if driveCalls != 2 {
		t.Errorf("drive service built %d times, want 2", driveCalls)
	}
}

func TestMissingServices(t *testing.T) {
	f := New(testConfig(t), mocks.NewStore(), Services{}, nil)
	_, err := f.FromURL(tu.TestContext(), "s3://bucket")
	if code := utils.AsCLIError(err).Code; code != utils.ErrCodeConfigError {
		t.Errorf("code = %s, want CONFIG_ERROR", code)
	}

	boom := errors.New("no credentials")
	f = New(testConfig(t), mocks.NewStore(), Services{
		Storage: func(context.Context) (*storage.Service, error) { return nil, boom },
	}, nil)
	if _, err := f.FromURL(tu.TestContext(), "gs://bucket"); !errors.Is(err, boom) {
		t.Errorf("error = %v", err)
	}
}

func TestRetryPolicy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RetryBaseDelayMs = 250
	cfg.RetryCeilingUnits = 16
	cfg.MaxRetries = 3

	p := RetryPolicy(cfg)
	if p.BaseDelay != 250*time.Millisecond || p.Ceiling != 16 || p.MaxRetries != 3 {
		t.Errorf("policy = %+v", p)
	}
	if p.MaxGrowth != utils.DefaultRetryGrowthLimit {
		t.Errorf("growth = %v", p.MaxGrowth)
	}
}

func TestConcurrentFirstUseBuildsOnce(t *testing.T) {
	var (
		mu    gosync.Mutex
		calls int
	)
	release := make(chan struct{})
	f := New(testConfig(t), mocks.NewStore(), Services{
		S3: func(context.Context) (s3backend.API, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			<-release
			return s3.New(s3.Options{Region: "us-east-1"}), nil
		},
	}, nil)

	var wg gosync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.FromURL(tu.TestContext(), "s3://bucket/prefix")
			errs <- err
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		tu.AssertNoError(t, err)
	}
	if calls != 1 {
		t.Errorf("s3 client built %d times, want 1", calls)
	}
}
