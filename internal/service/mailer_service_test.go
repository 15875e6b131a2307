package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/kmun/registration-service/internal/domain"
	"github.com/kmun/registration-service/internal/notify"
	"github.com/kmun/registration-service/internal/repository/memory"
	"github.com/kmun/registration-service/pkg/util/errorutil"
)

type MailerSuite struct {
	suite.Suite
	ctx    context.Context
	store  *memory.Store
	queue  *notify.MemoryQueue
	sender *recordingSender
	mailer *MailerService
}

func TestMailerSuite(t *testing.T) {
	suite.Run(t, new(MailerSuite))
}

func (s *MailerSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.queue = notify.NewMemoryQueue(64)
	s.sender = &recordingSender{}
	s.mailer = NewMailerService(s.store, newTestNotificationService(s.queue, s.sender))

	s.Require().NoError(s.store.Committees().Create(s.ctx, &domain.Committee{Name: "UNSC", IsActive: true}))
	registrations := newTestRegistrationService(s.store, nil)
	for email, committee := range map[string]string{
		"asha@example.com":  "UNSC",
		"ravi@example.com":  "UNGA",
		"meera@example.com": "WHO",
	} {
		in := ashaInput()
		in.Email = email
		in.Preferences[0] = domain.Preference{Committee: committee}
		if email == "meera@example.com" {
			in.Preferences[2] = domain.Preference{Committee: "UNSC"}
		}
		_, err := registrations.Submit(s.ctx, in)
		s.Require().NoError(err)
	}
}

func (s *MailerSuite) drain() []domain.Notification {
	var out []domain.Notification
	for {
		n, err := s.queue.Dequeue(s.ctx, time.Millisecond)
		if errors.Is(err, notify.ErrEmpty) {
			return out
		}
		s.Require().NoError(err)
		out = append(out, *n)
	}
}

func (s *MailerSuite) TestBulkToCommitteeMatchesAnyPreference() {
	res, err := s.mailer.SendBulk(s.ctx, BulkEmailRequest{
		RecipientType: RecipientRegistrants,
		Recipients:    []string{"UNSC"},
		Provider:      "Gmail",
		Subject:       "Security Council briefing",
		Message:       `<p>Read <a href="https://example.com">this</a></p><script>alert(1)</script>`,
	})
	s.Require().NoError(err)
	s.Equal(2, res.Recipients)
	s.Equal(2, res.Queued)

	notes := s.drain()
	s.Require().Len(notes, 2)
	var to []string
	for _, n := range notes {
		to = append(to, n.To)
		s.Equal(domain.NotificationBulk, n.Kind)
		s.Equal("gmail", n.Provider)
		s.NotContains(n.Data["html"], "<script>")
		s.Contains(n.Data["html"], "https://example.com")
		s.Equal("Read this", n.Data["text"])
	}
	s.ElementsMatch([]string{"asha@example.com", "meera@example.com"}, to)
}

func (s *MailerSuite) TestBulkToAll() {
	res, err := s.mailer.SendBulk(s.ctx, BulkEmailRequest{
		RecipientType: RecipientRegistrants,
		Recipients:    []string{"UNSC", "all"},
		Subject:       "Schedule",
		Message:       "Day 1 starts at 9",
	})
	s.Require().NoError(err)
	s.Equal(3, res.Queued)
	for _, n := range s.drain() {
		s.Equal("outlook", n.Provider)
	}
}

func (s *MailerSuite) TestBulkValidation() {
	cases := map[string]BulkEmailRequest{
		"missing subject":    {RecipientType: RecipientRegistrants, Recipients: []string{"all"}, Message: "x"},
		"unknown provider":   {RecipientType: RecipientRegistrants, Recipients: []string{"all"}, Subject: "s", Message: "x", Provider: "yahoo"},
		"single needs email": {RecipientType: RecipientSingle, Subject: "s", Message: "x"},
		"no recipients":      {RecipientType: RecipientRegistrants, Subject: "s", Message: "x"},
		"nobody matches":     {RecipientType: RecipientRegistrants, Recipients: []string{"ICJ"}, Subject: "s", Message: "x"},
		"unknown type":       {RecipientType: "everyone", Subject: "s", Message: "x"},
	}
	for name, req := range cases {
		s.Run(name, func() {
			_, err := s.mailer.SendBulk(s.ctx, req)
			s.ErrorIs(err, errorutil.ErrValidation)
		})
	}
	s.Empty(s.drain())
}

func (s *MailerSuite) TestSingleRecipient() {
	res, err := s.mailer.SendBulk(s.ctx, BulkEmailRequest{
		RecipientType: RecipientSingle,
		SingleEmail:   "Guest@Example.com",
		Subject:       "Hello",
		Message:       "Hi",
	})
	s.Require().NoError(err)
	s.Equal(1, res.Queued)
	s.Equal("guest@example.com", s.drain()[0].To)
}

func (s *MailerSuite) TestSendTestDeliversImmediately() {
	s.Require().NoError(s.mailer.SendTest(s.ctx, "admin@mun.com", "Ping", "<b>pong</b>", ""))
	s.Require().Len(s.sender.sent, 1)
	s.Equal("Ping", s.sender.sent[0].Subject)
	s.Equal("outlook", s.sender.sent[0].Provider)
	s.Empty(s.drain())

	s.sender.err = errors.New("535 auth failed")
	err := s.mailer.SendTest(s.ctx, "admin@mun.com", "Ping", "pong", "gmail")
	s.Require().Error(err)
	var domainErr *errorutil.DomainError
	s.Require().True(errors.As(err, &domainErr))
	s.Equal("MAIL_DELIVERY_FAILED", domainErr.Code)
}

func (s *MailerSuite) TestRecipientsSummary() {
	summary, err := s.mailer.Recipients(s.ctx)
	s.Require().NoError(err)
	s.Equal(3, summary.Total)
	s.Equal(3, summary.ByStatus[domain.RegistrationStatusPending])
	s.Equal([]string{"UNSC"}, summary.Committees)
}
