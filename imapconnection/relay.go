// SPDX-License-Identifier: GPL-3.0-or-later
package imapconnection

import (
	"crypto/tls"
	"fmt"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

type sender interface {
	send(from string, to []string, msg []byte) error
}

// SmtpRelay submits replies to an authenticated submission server.
type SmtpRelay struct {
	addr string
	auth sasl.Client
	dial func(addr string) (*smtp.Client, error)
}

func NewSmtpRelay(addr, user, password string, implicitTLS bool) *SmtpRelay {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	relay := &SmtpRelay{
		addr: addr,
		dial: func(addr string) (*smtp.Client, error) {
			return smtp.DialStartTLS(addr, tlsConfig)
		},
	}
	if implicitTLS {
		relay.dial = func(addr string) (*smtp.Client, error) {
			return smtp.DialTLS(addr, tlsConfig)
		}
	}
	if len(user) > 0 {
		relay.auth = sasl.NewPlainClient("", user, password)
	}
	return relay
}

func (r *SmtpRelay) send(from string, to []string, msg []byte) error {
	if len(to) == 0 {
		return fmt.Errorf("message has no recipients")
	}

	c, err := r.dial(r.addr)
	if err != nil {
		return fmt.Errorf("could not connect to smtp server: %w", err)
	}
	defer c.Close()

	if r.auth != nil {
		err = c.Auth(r.auth)
		if err != nil {
			return fmt.Errorf("could not authenticate to smtp server: %w", err)
		}
	}

	err = c.Mail(from, nil)
	if err != nil {
		return fmt.Errorf("could not set sender: %w", err)
	}
	for _, rcpt := range to {
		err = c.Rcpt(rcpt, nil)
		if err != nil {
			return fmt.Errorf("could not set recipient %s: %w", rcpt, err)
		}
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("could not start data: %w", err)
	}
	_, err = wc.Write(msg)
	if err != nil {
		_ = wc.Close()
		return fmt.Errorf("could not write message: %w", err)
	}
	err = wc.Close()
	if err != nil {
		return fmt.Errorf("could not finish data: %w", err)
	}

	// the message is accepted at this point
	_ = c.Quit()
	return nil
}
