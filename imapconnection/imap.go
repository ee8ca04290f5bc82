// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/CrawX/go-gmail-triage/domain"
	"github.com/CrawX/go-gmail-triage/log"
	"github.com/CrawX/go-gmail-triage/mail"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap-compress"
	"github.com/emersion/go-imap-move"
	"github.com/emersion/go-imap-uidplus"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoRelay       = errors.New("no smtp relay configured")
	ErrNoSuchMessage = errors.New("no such message")
)

type Folders struct {
	Inbox   string
	Archive string
	// Sent is optional, sent replies are appended there when set.
	Sent string
}

// ImapConnection exposes an IMAP mailbox as a mail provider. Labels are folders, UNREAD is the
// absence of \Seen and removing INBOX archives the message. Message ids are UIDs of the inbox folder.
type ImapConnection struct {
	connection *client.Client
	archiver   transferrer
	folders    Folders

	relay sender
	from  string

	selectedFolder string

	l *logrus.Logger
}

func NewImapConnection(server, user, password string, folders Folders, compressed bool) (*ImapConnection, error) {
	imapClient, err := client.DialTLS(server, nil)
	if err != nil {
		return nil, fmt.Errorf("could not dial to imap: %w", err)
	}

	err = imapClient.Login(user, password)
	if err != nil {
		return nil, fmt.Errorf("could not login to imap: %w", err)
	}

	if compressed {
		compressClient := compress.NewClient(imapClient)
		supported, err := compressClient.SupportCompress(compress.Deflate)
		if err != nil {
			return nil, fmt.Errorf("could not check for COMPRESS support: %w", err)
		}
		if supported {
			err = compressClient.Compress(compress.Deflate)
			if err != nil {
				return nil, fmt.Errorf("could not enable compression: %w", err)
			}
		}
	}

	return newImapConnection(imapClient, folders)
}

func newImapConnection(imapClient *client.Client, folders Folders) (*ImapConnection, error) {
	uidPlusClient := uidplus.NewClient(imapClient)
	uidPlusSupported, err := uidPlusClient.SupportUidPlus()
	if err != nil {
		return nil, fmt.Errorf("could not check for UIDPLUS support: %w", err)
	}

	moveClient := move.NewClient(imapClient)
	moveSupported, err := moveClient.SupportMove()
	if err != nil {
		return nil, fmt.Errorf("could not check for MOVE support: %w", err)
	}

	conn := &ImapConnection{
		connection: imapClient,
		folders:    folders,
		l:          log.Logger(log.LOG_IMAP),
	}

	baseLogger := conn.l.WithFields(logrus.Fields{"inbox": folders.Inbox, "archive": folders.Archive})
	baseLogger.Debug("Logged in to server")

	if moveSupported {
		baseLogger.Debug("MOVE supported on server")
		conn.archiver = &moveTransferrer{client: moveClient}
	} else {
		var e expunger
		if uidPlusSupported {
			baseLogger.Debug("MOVE not supported on server, archiving with copy&UID expunge")
			e = &uidPlusExpunger{conn: &uidPlusConn{conn, uidPlusClient}}
		} else {
			baseLogger.Info("MOVE and UIDPLUS not supported on server, falling back to copy&expunge")
			e = &folderExpunger{conn: &plainConn{conn, imapClient}}
		}
		conn.archiver = &copyTransferrer{client: imapClient, expunger: e}
	}

	return conn, nil
}

// SetRelay enables SendMessage, replies are submitted from address through relay.
func (ic *ImapConnection) SetRelay(relay *SmtpRelay, address string) {
	ic.relay = relay
	ic.from = address
}

type uidPlusConn struct {
	*ImapConnection
	*uidplus.Client
}

type plainConn struct {
	*ImapConnection
	*client.Client
}

func (ic *ImapConnection) selectInbox() error {
	if ic.selectedFolder == ic.folders.Inbox {
		return nil
	}

	_, err := ic.connection.Select(ic.folders.Inbox, false)
	if err != nil {
		return fmt.Errorf("could not select folder %s: %w", ic.folders.Inbox, err)
	}
	ic.selectedFolder = ic.folders.Inbox
	return nil
}

func parseUid(id string) (uint32, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid message id %q: %w", id, err)
	}
	return uint32(uid), nil
}

func (ic *ImapConnection) ListMessages(ctx context.Context, query domain.Query) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.ProviderError{Op: "list", Err: err}
	}
	if err := ic.selectInbox(); err != nil {
		return nil, &domain.ProviderError{Op: "list", Err: err}
	}

	criteria := imap.NewSearchCriteria()
	if query.UnreadOnly {
		criteria.WithoutFlags = []string{imap.SeenFlag}
	}
	if !query.After.IsZero() {
		// SINCE compares dates only, search a day early and refine by INTERNALDATE
		criteria.Since = query.After.UTC().AddDate(0, 0, -1)
	}

	uids, err := ic.connection.UidSearch(criteria)
	if err != nil {
		return nil, &domain.ProviderError{Op: "list", Err: fmt.Errorf("could not search folder: %w", err)}
	}

	if !query.After.IsZero() && len(uids) > 0 {
		uids, err = ic.receivedAfter(uids, query.After)
		if err != nil {
			return nil, &domain.ProviderError{Op: "list", Err: err}
		}
	}

	// newest first
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	if query.MaxResults > 0 && int64(len(uids)) > query.MaxResults {
		uids = uids[:query.MaxResults]
	}

	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

func (ic *ImapConnection) receivedAfter(uids []uint32, after time.Time) ([]uint32, error) {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- ic.connection.UidFetch(seqset, []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate}, messages)
	}()

	filtered := []uint32{}
	for msg := range messages {
		if msg.InternalDate.After(after) {
			filtered = append(filtered, msg.Uid)
		}
	}

	err := <-done
	if err != nil {
		return nil, fmt.Errorf("could not fetch internal dates: %w", err)
	}
	return filtered, nil
}

func (ic *ImapConnection) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.ProviderError{Op: "get", Err: err}
	}
	uid, err := parseUid(id)
	if err != nil {
		return nil, &domain.ProviderError{Op: "get", Err: err}
	}
	if err := ic.selectInbox(); err != nil {
		return nil, &domain.ProviderError{Op: "get", Err: err}
	}

	seqset := &imap.SeqSet{}
	seqset.AddNum(uid)
	section := &imap.BodySectionName{Peek: true}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- ic.connection.UidFetch(seqset, []imap.FetchItem{imap.FetchUid, section.FetchItem()}, messages)
	}()

	var raw []byte
	var readErr error
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			continue
		}
		raw, readErr = io.ReadAll(r)
	}

	err = <-done
	if err != nil {
		return nil, &domain.ProviderError{Op: "get", Err: fmt.Errorf("could not fetch message: %w", err)}
	}
	if readErr != nil {
		return nil, &domain.ProviderError{Op: "get", Err: fmt.Errorf("could not read message: %w", readErr)}
	}
	if raw == nil {
		return nil, &domain.ProviderError{Op: "get", Err: fmt.Errorf("%w: %s", ErrNoSuchMessage, id)}
	}

	m, err := ParseMessage(id, raw)
	if err != nil {
		return nil, &domain.ProviderError{Op: "get", Err: err}
	}
	return m, nil
}

// ParseMessage converts an RFC 822 message into the provider neutral model. Part data is re-encoded
// the way the Gmail API delivers it.
func ParseMessage(id string, raw []byte) (*domain.Message, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, fmt.Errorf("could not parse message: %w", err)
	}

	m := &domain.Message{ID: id}
	fields := entity.Header.Fields()
	for fields.Next() {
		value, err := fields.Text()
		if err != nil {
			value = fields.Value()
		}
		m.Headers = append(m.Headers, domain.Header{Name: fields.Key(), Value: value})
	}
	m.ThreadID = threadId(m)

	root, err := convertEntity(entity)
	if err != nil {
		return nil, err
	}
	switch {
	case len(root.Parts) > 0:
		m.Body.Parts = root.Parts
	case root.MimeType == "text/plain":
		m.Body.Data = root.Data
	default:
		m.Body.Parts = []domain.Part{root}
	}

	return m, nil
}

// threadId is the root of the References chain, or the message's own id.
func threadId(m *domain.Message) string {
	for _, name := range []string{"References", "In-Reply-To", "Message-Id"} {
		fields := strings.Fields(m.Header(name))
		if len(fields) > 0 {
			return fields[0]
		}
	}
	return m.ID
}

func convertEntity(entity *message.Entity) (domain.Part, error) {
	mimeType, _, err := entity.Header.ContentType()
	if err != nil || len(mimeType) == 0 {
		mimeType = "text/plain"
	}
	part := domain.Part{MimeType: mimeType}

	if mr := entity.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				break
			} else if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
				return part, fmt.Errorf("could not read part: %w", err)
			}

			child, err := convertEntity(p)
			if err != nil {
				return part, err
			}
			part.Parts = append(part.Parts, child)
		}
		return part, nil
	}

	data, err := io.ReadAll(entity.Body)
	if err != nil {
		return part, fmt.Errorf("could not read %s body: %w", mimeType, err)
	}
	part.Data = mail.EncodeData(data)
	return part, nil
}

func (ic *ImapConnection) ModifyMessage(ctx context.Context, id string, addLabelIds, removeLabelIds []string) error {
	if err := ctx.Err(); err != nil {
		return &domain.ProviderError{Op: "modify", Err: err}
	}
	uid, err := parseUid(id)
	if err != nil {
		return &domain.ProviderError{Op: "modify", Err: err}
	}
	if err := ic.selectInbox(); err != nil {
		return &domain.ProviderError{Op: "modify", Err: err}
	}

	var flagsOp imap.FlagsOp
	var folders []string
	archive := false

	for _, label := range addLabelIds {
		switch label {
		case domain.LabelUnread:
			flagsOp = imap.RemoveFlags
		case domain.LabelInbox:
		default:
			folders = append(folders, label)
		}
	}
	for _, label := range removeLabelIds {
		switch label {
		case domain.LabelUnread:
			flagsOp = imap.AddFlags
		case domain.LabelInbox:
			archive = true
		default:
			return &domain.ProviderError{Op: "modify", Err: fmt.Errorf("cannot remove label %q, folders only support adding", label)}
		}
	}

	seqset := &imap.SeqSet{}
	seqset.AddNum(uid)

	if len(flagsOp) > 0 {
		err = ic.connection.UidStore(seqset, imap.FormatFlagsOp(flagsOp, true), []interface{}{imap.SeenFlag}, nil)
		if err != nil {
			return &domain.ProviderError{Op: "modify", Err: fmt.Errorf("could not update seen flag: %w", err)}
		}
	}

	for _, folder := range folders {
		err = ic.connection.UidCopy(seqset, folder)
		if err != nil {
			return &domain.ProviderError{Op: "modify", Err: fmt.Errorf("could not copy to %s: %w", folder, err)}
		}
	}

	if archive {
		err = ic.archiver.transfer(uid, ic.folders.Archive)
		if err != nil {
			return &domain.ProviderError{Op: "modify", Err: fmt.Errorf("could not archive: %w", err)}
		}
	}

	ic.l.WithFields(logrus.Fields{"uid": uid, "add": addLabelIds, "remove": removeLabelIds}).Debug("Modified message")
	return nil
}

func (ic *ImapConnection) flagDeleted(uid uint32) (*imap.SeqSet, error) {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uid)
	err := ic.connection.UidStore(seqset, imap.FormatFlagsOp(imap.AddFlags, true), []interface{}{imap.DeletedFlag}, nil)
	if err != nil {
		return nil, fmt.Errorf("could not set delete flag: %w", err)
	}

	return seqset, nil
}

func (ic *ImapConnection) ListLabels(ctx context.Context) ([]*domain.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.ProviderError{Op: "list labels", Err: err}
	}

	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- ic.connection.List("", "*", mailboxes)
	}()

	labels := []*domain.Label{}
	for mbox := range mailboxes {
		labels = append(labels, &domain.Label{ID: mbox.Name, Name: mbox.Name})
	}

	err := <-done
	if err != nil {
		return nil, &domain.ProviderError{Op: "list labels", Err: err}
	}
	return labels, nil
}

func (ic *ImapConnection) CreateLabel(ctx context.Context, name string) (*domain.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.ProviderError{Op: "create label", Err: err}
	}

	err := ic.connection.Create(name)
	if err != nil {
		return nil, &domain.ProviderError{Op: "create label", Err: err}
	}

	ic.l.WithField("folder", name).Info("Created folder")
	return &domain.Label{ID: name, Name: name}, nil
}

// SendMessage submits raw over SMTP. threadID is not needed, replies thread through their headers.
func (ic *ImapConnection) SendMessage(ctx context.Context, raw []byte, threadID string) (*domain.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.ProviderError{Op: "send", Err: err}
	}
	if ic.relay == nil {
		return nil, &domain.ProviderError{Op: "send", Err: ErrNoRelay}
	}

	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil {
		return nil, &domain.ProviderError{Op: "send", Err: fmt.Errorf("could not parse outgoing message: %w", err)}
	}
	h := gomail.Header{Header: entity.Header}
	to, err := h.AddressList("To")
	if err != nil {
		return nil, &domain.ProviderError{Op: "send", Err: fmt.Errorf("could not parse recipients: %w", err)}
	}
	recipients := make([]string, 0, len(to))
	for _, a := range to {
		recipients = append(recipients, a.Address)
	}

	err = ic.relay.send(ic.from, recipients, raw)
	if err != nil {
		return nil, &domain.ProviderError{Op: "send", Err: err}
	}

	if len(ic.folders.Sent) > 0 {
		err = ic.connection.Append(ic.folders.Sent, []string{imap.SeenFlag}, time.Now(), bytes.NewReader(raw))
		if err != nil {
			ic.l.WithFields(logrus.Fields{"folder": ic.folders.Sent, "error": err}).Warn("Reply sent but could not be stored")
		}
	}

	messageId, _ := h.MessageID()
	return &domain.SendResult{ID: messageId, ThreadID: threadID}, nil
}

func (ic *ImapConnection) Close() error {
	return ic.connection.Logout()
}
