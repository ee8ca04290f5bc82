// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

//go:generate mockgen -destination=archive_mocks_test.go -package=imapconnection -source archive.go
import (
	"errors"
	"fmt"

	"github.com/emersion/go-imap"
)

// Archiving a message removes it from the selected folder. Servers with MOVE do that in one command,
// everyone else gets a copy followed by an expunge. Expunging is done with UID EXPUNGE when UIDPLUS is
// available, otherwise with a plain EXPUNGE that is only safe while nothing else is flagged deleted.

type expunger interface {
	expunge(uid uint32) error
}

type transferrer interface {
	transfer(uid uint32, folder string) error
}

type deletedFlagger interface {
	flagDeleted(uid uint32) (*imap.SeqSet, error)
}

type uidExpungeClient interface {
	deletedFlagger
	UidExpunge(seqSet *imap.SeqSet, ch chan uint32) error
}

type uidPlusExpunger struct {
	conn uidExpungeClient
}

func (u *uidPlusExpunger) expunge(uid uint32) error {
	seqset, err := u.conn.flagDeleted(uid)
	if err != nil {
		return fmt.Errorf("could not flag message as deleted: %w", err)
	}

	return collectExpunged(uid, func(ch chan uint32) error {
		return u.conn.UidExpunge(seqset, ch)
	})
}

type folderExpungeClient interface {
	deletedFlagger
	Expunge(ch chan uint32) error
	UidSearch(criteria *imap.SearchCriteria) (uids []uint32, err error)
}

type folderExpunger struct {
	conn folderExpungeClient
}

var ErrForeignDeletedFlags = errors.New("folder has other messages with the deleted flag set")

func (f *folderExpunger) expunge(uid uint32) error {
	// EXPUNGE removes everything flagged, refuse to take others with us
	criteria := imap.NewSearchCriteria()
	criteria.WithFlags = []string{imap.DeletedFlag}
	flagged, err := f.conn.UidSearch(criteria)
	if err != nil {
		return fmt.Errorf("could not search for deleted messages: %w", err)
	}
	for _, v := range flagged {
		if v != uid {
			return ErrForeignDeletedFlags
		}
	}

	_, err = f.conn.flagDeleted(uid)
	if err != nil {
		return fmt.Errorf("could not flag message as deleted: %w", err)
	}

	return collectExpunged(uid, f.conn.Expunge)
}

// collectExpunged drains the expunge responses of run and checks that exactly one message went away.
func collectExpunged(uid uint32, run func(ch chan uint32) error) error {
	out := make(chan uint32)
	done := make(chan error, 1)
	go func() {
		done <- run(out)
	}()

	expunged := 0
	for range out {
		expunged++
	}

	err := <-done
	if err != nil {
		return fmt.Errorf("could not expunge message %d: %w", uid, err)
	}
	if expunged != 1 {
		return fmt.Errorf("unexpected number of expunges for message %d, got %d", uid, expunged)
	}
	return nil
}

type moveClient interface {
	UidMove(seqset *imap.SeqSet, dest string) error
}

type moveTransferrer struct {
	client moveClient
}

func (m *moveTransferrer) transfer(uid uint32, folder string) error {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uid)
	return m.client.UidMove(seqset, folder)
}

type copyClient interface {
	UidCopy(seqset *imap.SeqSet, dest string) error
}

type copyTransferrer struct {
	client   copyClient
	expunger expunger
}

func (c *copyTransferrer) transfer(uid uint32, folder string) error {
	seqset := &imap.SeqSet{}
	seqset.AddNum(uid)
	err := c.client.UidCopy(seqset, folder)
	if err != nil {
		return fmt.Errorf("could not copy message: %w", err)
	}

	err = c.expunger.expunge(uid)
	if err != nil {
		return fmt.Errorf("could not remove copied message: %w", err)
	}
	return nil
}
