package mail

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{Enabled: true})
	if err == nil || !strings.Contains(err.Error(), "host is required") {
		t.Fatalf("want host validation error, got %v", err)
	}

	_, err = NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com"})
	if err == nil || !strings.Contains(err.Error(), "port is required") {
		t.Fatalf("expected port validation error, got %v", err)
	}

	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	if err != nil {
		t.Fatalf("disabled configuration should succeed: %v", err)
	}
	if mailer == nil {
		t.Fatal("mailer should not be nil")
	}
}

func TestSMTPMailerSendDisabled(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{Enabled: false})
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		To:      []string{"employee@example.com"},
		Subject: "You're invited",
		Body:    "Hello",
	})
	if err != ErrDeliveryDisabled {
		t.Fatalf("expected ErrDeliveryDisabled, got %v", err)
	}
}

func TestFormatMessage(t *testing.T) {
	content := formatMessage("from@example.com", []string{"to@example.com"}, "Subject\r\nBreak", "Body")
	if !strings.Contains(content, "From: from@example.com") {
		t.Fatalf("missing From header in %q", content)
	}
	if !strings.Contains(content, "Subject: Subject  Break") {
		t.Fatalf("subject not sanitised: %q", content)
	}
	if !strings.HasSuffix(content, "Body") {
		t.Fatalf("body = %q, want suffix", content)
	}
}

func TestSMTPMailerDefaultTimeout(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
		UseTLS:  true,
	})
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}

	sm, ok := mailer.(*smtpMailer)
	if !ok {
		t.Fatalf("want smtpMailer implementation")
	}

	if sm.cfg.Timeout != 10*time.Second {
		t.Fatalf("timeout = %v, want 10s", sm.cfg.Timeout)
	}
}

func TestSMTPMailerSendRequiresRecipients(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
	})
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		To:      []string{"   ", "\t"},
		Subject: "No recipients",
		Body:    "Body",
	})
	if err == nil || !strings.Contains(err.Error(), "at least one recipient") {
		t.Fatalf("want missing recipient error, got %v", err)
	}
}

func TestSMTPMailerSendValidatesAddresses(t *testing.T) {
	mailer, err := NewSMTPMailer(SMTPSettings{
		Enabled: true,
		Host:    "smtp.example.com",
		Port:    587,
	})
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		From:    "invalid-from",
		To:      []string{"to@example.com"},
		Subject: "Bad sender",
	})
	if err == nil || !strings.Contains(err.Error(), "invalid from address") {
		t.Fatalf("want invalid from error, got %v", err)
	}

	err = mailer.Send(context.Background(), Message{
		From:    "from@example.com",
		To:      []string{"not an address"},
		Subject: "Bad recipient",
	})
	if err == nil || !strings.Contains(err.Error(), "invalid recipient address") {
		t.Fatalf("want invalid recipient error, got %v", err)
	}
}

func TestDedupeAddresses(t *testing.T) {
	out := dedupeAddresses([]string{"a@example.com", " a@example.com ", "b@example.com", ""})
	if len(out) != 2 {
		t.Fatalf("expected 2 unique addresses, got %v", out)
	}
}
