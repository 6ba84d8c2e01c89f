package mailsource

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/enquira/mailtriage/config"
	"github.com/enquira/mailtriage/interfaces"
	"github.com/enquira/mailtriage/internal/enum"
	"github.com/enquira/mailtriage/internal/logger"
	"github.com/enquira/mailtriage/internal/tracing"
	"github.com/enquira/mailtriage/internal/utils"
)

// IMAPSource pulls unread messages from a single IMAP mailbox. Each
// call dials a fresh connection; the polling cadence is owned by the
// caller (cron or the fetch endpoint), not by this type.
type IMAPSource struct {
	cfg *config.IMAPConfig
	log logger.Logger
}

func NewIMAPSource(cfg *config.IMAPConfig, log logger.Logger) interfaces.MailSource {
	return &IMAPSource{
		cfg: cfg,
		log: log,
	}
}

func (s *IMAPSource) FetchUnread(ctx context.Context) ([]*interfaces.RawMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPSource.FetchUnread")
	defer span.Finish()
	tracing.TagComponentService(span)

	c, err := s.connect(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select(s.cfg.Folder, false); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "select folder")
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if s.cfg.FetchWindow > 0 {
		criteria.Since = utils.Now().AddDate(0, 0, -s.cfg.FetchWindow)
	}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "search unseen")
	}
	span.LogKV("unseen", len(uids))
	if len(uids) == 0 {
		return nil, nil
	}

	if s.cfg.FetchLimit > 0 && len(uids) > s.cfg.FetchLimit {
		uids = uids[:s.cfg.FetchLimit]
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchEnvelope,
		imap.FetchUid,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var fetched []*interfaces.RawMessage
	for msg := range messages {
		raw, err := s.buildRawMessage(msg, section)
		if err != nil {
			s.log.Warnf("Skipping message uid %d: %v", msg.Uid, err)
			continue
		}
		fetched = append(fetched, raw)
	}

	if err := <-done; err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "fetch messages")
	}

	span.LogKV("fetched", len(fetched))
	return fetched, nil
}

func (s *IMAPSource) MarkSeen(ctx context.Context, uid uint32) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "IMAPSource.MarkSeen")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag("uid", uid)

	if !s.cfg.MarkSeen {
		return nil
	}

	c, err := s.connect(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	defer c.Logout()

	if _, err := c.Select(s.cfg.Folder, false); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "select folder")
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := c.UidStore(seqSet, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "store seen flag")
	}

	return nil
}

func (s *IMAPSource) connect(ctx context.Context) (*client.Client, error) {
	serverAddr := fmt.Sprintf("%s:%d", s.cfg.Server, s.cfg.Port)

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	tlsConfig := &tls.Config{
		ServerName: s.cfg.Server,
	}
	c, err := client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	if err != nil {
		return nil, errors.Wrap(err, "connection error")
	}

	c.Timeout = 60 * time.Second

	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		c.Logout()
		return nil, errors.Wrap(err, "login error")
	}

	return c, nil
}

func (s *IMAPSource) buildRawMessage(msg *imap.Message, section *imap.BodySectionName) (*interfaces.RawMessage, error) {
	if msg.Envelope == nil {
		return nil, errors.New("message has no envelope")
	}

	body := msg.GetBody(section)
	if body == nil {
		return nil, errors.New("message has no body")
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}

	var senderName, senderAddress string
	if len(msg.Envelope.From) > 0 {
		from := msg.Envelope.From[0]
		senderName = from.PersonalName
		senderAddress = from.Address()
	}

	return &interfaces.RawMessage{
		MessageID:     utils.NormalizeMessageID(msg.Envelope.MessageId),
		UID:           msg.Uid,
		SenderName:    senderName,
		SenderAddress: senderAddress,
		Subject:       msg.Envelope.Subject,
		ReceivedAt:    msg.Envelope.Date,
		RoleOfInbox:   s.inboxRole(msg.Envelope),
		Raw:           raw,
	}, nil
}

// inboxRole records whether this mailbox was addressed directly or
// only copied, which downstream triage uses as a relevance hint.
func (s *IMAPSource) inboxRole(envelope *imap.Envelope) enum.RecipientRole {
	self := strings.ToLower(s.cfg.Username)
	for _, addr := range envelope.To {
		if strings.ToLower(addr.Address()) == self {
			return enum.RoleTo
		}
	}
	for _, addr := range envelope.Cc {
		if strings.ToLower(addr.Address()) == self {
			return enum.RoleCc
		}
	}
	return enum.RoleUnknown
}
