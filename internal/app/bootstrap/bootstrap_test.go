package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/wolfman30/consult-booking/internal/appointments"
	appconfig "github.com/wolfman30/consult-booking/internal/config"
	"github.com/wolfman30/consult-booking/internal/doctors"
	"github.com/wolfman30/consult-booking/internal/events"
	"github.com/wolfman30/consult-booking/internal/payments"
	"github.com/wolfman30/consult-booking/pkg/logging"
)

func TestBuildRedisClientDisabled(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected client for live redis")
	}
	_ = client.Close()

	mr.Close()
	if client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	pool, err := BuildPostgresPool(context.Background(), "  ", logging.New("error"))
	if err != nil || pool != nil {
		t.Fatalf("expected nil pool and no error, got %v %v", pool, err)
	}
	if _, err := BuildPostgresPool(context.Background(), "postgres://localhost:badport/consult", logging.New("error")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestBuildStoresInMemory(t *testing.T) {
	stores := BuildStores(nil)
	if stores.Durable {
		t.Fatalf("expected non-durable stores")
	}
	if _, ok := stores.Appointments.(*appointments.MemoryStore); !ok {
		t.Fatalf("expected memory appointment store, got %T", stores.Appointments)
	}
	if _, ok := stores.Outbox.(*events.MemoryOutbox); !ok {
		t.Fatalf("expected memory outbox, got %T", stores.Outbox)
	}
	if _, ok := stores.Ledger.(*payments.MemoryLedger); !ok {
		t.Fatalf("expected memory ledger, got %T", stores.Ledger)
	}
}

func TestBuildDoctorDirectory(t *testing.T) {
	cfg := &appconfig.Config{DoctorsJSON: `[{"id":"D","name":"Dr. Rao","consultation_fee":"50"}]`}

	dir, err := BuildDoctorDirectory(cfg, nil, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := dir.(*doctors.StaticDirectory); !ok {
		t.Fatalf("expected static directory without redis, got %T", dir)
	}
	doc, err := dir.Get(context.Background(), "D")
	if err != nil || doc.ConsultationFee.String() != "50" {
		t.Fatalf("unexpected doctor %v %v", doc, err)
	}

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, nil, false)
	defer client.Close()
	dir, err = BuildDoctorDirectory(cfg, client, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := dir.(*doctors.RedisDirectory); !ok {
		t.Fatalf("expected redis directory, got %T", dir)
	}

	if _, err := BuildDoctorDirectory(&appconfig.Config{DoctorsJSON: "{"}, nil, nil); err == nil {
		t.Fatalf("expected error for malformed DOCTORS_JSON")
	}
}

func TestBuildProcessor(t *testing.T) {
	logger := logging.New("error")

	p, err := BuildProcessor(&appconfig.Config{StripeSecretKey: "sk_test"}, logger)
	if err != nil || p.Name() != "stripe" {
		t.Fatalf("expected stripe processor, got %v %v", p, err)
	}

	p, err = BuildProcessor(&appconfig.Config{AllowFakePayments: true, Env: "development"}, logger)
	if err != nil || p.Name() != "fake" {
		t.Fatalf("expected fake processor, got %v %v", p, err)
	}

	if _, err := BuildProcessor(&appconfig.Config{AllowFakePayments: true, Env: "production"}, logger); !errors.Is(err, ErrNoProcessor) {
		t.Fatalf("expected fake processor to be refused in production, got %v", err)
	}
	if _, err := BuildProcessor(&appconfig.Config{}, logger); !errors.Is(err, ErrNoProcessor) {
		t.Fatalf("expected ErrNoProcessor, got %v", err)
	}
}

func TestBuildDeliveryHandler(t *testing.T) {
	handler, err := BuildDeliveryHandler(context.Background(), &appconfig.Config{}, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := handler.(*events.LogDelivery); !ok {
		t.Fatalf("expected log delivery without queue url, got %T", handler)
	}

	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	cfg := &appconfig.Config{
		AWSRegion:           "us-east-1",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "test",
		AWSEndpointOverride: "http://localhost:4566",
		EventsQueueURL:      "http://localhost:4566/000000000000/consult-events",
	}
	handler, err = BuildDeliveryHandler(context.Background(), cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := handler.(*events.SQSDelivery); !ok {
		t.Fatalf("expected sqs delivery, got %T", handler)
	}
}
