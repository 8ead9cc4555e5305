package extension

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/mssqlext/mssql-extension/pkg/config"
	"github.com/mssqlext/mssql-extension/pkg/errx"
	"github.com/mssqlext/mssql-extension/pkg/fedauth"
	"github.com/mssqlext/mssql-extension/pkg/logx"
	"github.com/mssqlext/mssql-extension/pkg/pool"
	"github.com/mssqlext/mssql-extension/pkg/tds"
	"github.com/mssqlext/mssql-extension/pkg/tlsutil"
)

// clientVersion is this extension's own "client version", echoed loosely
// by servers in the PRELOGIN response; it carries no negotiation meaning.
var clientVersion = tds.ServerVersion{Major: 1, Minor: 0, Build: 0, SubBuild: 0}

// newFactory builds the pool.Factory that dials, negotiates encryption,
// and authenticates one connection: PRELOGIN, an optional TLS upgrade
// tunneled inside PRELOGIN framing, then LOGIN7 (SQL auth or, when
// tokens is non-nil, the FEDAUTH feature extension).
func newFactory(opts config.Options, tokens *fedauth.Cache, log *logx.Logger) pool.Factory {
	if log == nil {
		log = logx.Nop()
	}
	return func(ctx context.Context) (*pool.Conn, error) {
		addr := opts.Host + ":" + portString(opts.Port)
		log.Trace(logx.CategoryTransport, "dialing %s", addr)
		framer, err := tds.Dial(ctx, addr, opts.ConnectionTimeout)
		if err != nil {
			log.Warn(logx.CategoryTransport, "dial %s failed: %v", addr, err)
			return nil, errx.Wrap(err, errx.KindTransport, "extension: dial failed")
		}

		azure := fedauth.IsAzureHost(opts.Host)
		pre := tds.PreloginRequest{
			Version:         clientVersion,
			Encryption:      preloginEncryptionOption(opts.Encrypt),
			FedAuthRequired: azure && tokens != nil,
		}
		if err := framer.SendMessage(tds.PacketPrelogin, pre.Marshal()); err != nil {
			framer.Close()
			return nil, errx.Wrap(err, errx.KindTransport, "extension: prelogin send failed")
		}
		_, respBody, err := framer.ReceiveMessage(deadlineFrom(ctx))
		if err != nil {
			framer.Close()
			return nil, errx.Wrap(err, errx.KindTransport, "extension: prelogin response failed")
		}
		resp, err := tds.ParsePreloginResponse(respBody)
		if err != nil {
			framer.Close()
			return nil, errx.Wrap(err, errx.KindProtocol, "extension: prelogin response invalid")
		}
		if resp.RequiresTLS() {
			log.Trace(logx.CategoryTransport, "upgrading %s to TLS", addr)
			if err := framer.UpgradeTLS(tlsutil.ClientConfig(opts.Host, opts.TrustServerCertificate)); err != nil {
				framer.Close()
				return nil, errx.Wrap(err, errx.KindTransport, "extension: TLS upgrade failed")
			}
		}

		login := tds.Login7Request{
			TDSVersion:    tds.VerTDS74,
			PacketSize:    uint32(framer.PacketSize()),
			ClientProgVer: 0x01000000,
			ClientPID:     uint32(os.Getpid()),
			HostName:      hostname(),
			AppName:       appNameOrDefault(opts.AppName),
			ServerName:    opts.Host,
			CtlIntName:    "mssql-extension",
			Language:      "us_english",
			Database:      opts.Database,
		}
		if tokens != nil {
			tok, err := tokens.Token(ctx)
			if err != nil {
				framer.Close()
				return nil, err
			}
			login.FedAuthToken = tok.Value
		} else {
			login.UserName = opts.User
			login.Password = opts.Password
		}
		if err := framer.SendMessage(tds.PacketLogin7, login.Marshal()); err != nil {
			framer.Close()
			return nil, errx.Wrap(err, errx.KindTransport, "extension: login7 send failed")
		}

		c := pool.NewConn(framer)
		if err := drainLoginResponse(c, deadlineFrom(ctx)); err != nil {
			log.Warn(logx.CategoryPool, "login to %s failed: %v", addr, err)
			framer.Close()
			if tokens != nil {
				tokens.Invalidate()
			}
			return nil, err
		}
		if err := c.MarkAuthenticated(); err != nil {
			framer.Close()
			return nil, err
		}
		log.Info(logx.CategoryPool, "authenticated connection to %s", addr)
		return c, nil
	}
}

func preloginEncryptionOption(encrypt bool) uint8 {
	if encrypt {
		return tds.EncryptOn
	}
	return tds.EncryptOff
}

func portString(port int) string {
	if port <= 0 {
		port = config.DefaultPort
	}
	return strconv.Itoa(port)
}

// deadlineFrom derives a read deadline from the context, falling back to
// a generous fixed window when the context carries none — the dial path
// is not itself subject to the per-query deadlines pkg/stream enforces.
func deadlineFrom(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(30 * time.Second)
}

// drainLoginResponse pumps the post-LOGIN7 token stream until DONE,
// watching for LOGINACK (success) and ERROR (authentication failure).
// ENVCHANGE and INFO tokens are consumed and discarded; the connection's
// initial database/collation is whatever the server reports once queries
// start flowing through pkg/stream, not something this handshake needs.
func drainLoginResponse(c *pool.Conn, deadline time.Time) error {
	framer := c.Framer
	reader := c.TokenReader()
	sawLoginAck := false

	for {
		tok, err := reader.Next()
		if err == tds.ErrNeedMoreData {
			_, payload, rerr := framer.ReceiveMessage(deadline)
			if rerr != nil {
				return errx.Wrap(rerr, errx.KindTransport, "extension: login response read failed")
			}
			reader.Feed(payload)
			continue
		}
		if err != nil {
			return errx.Wrap(err, errx.KindProtocol, "extension: login response malformed")
		}
		switch v := tok.(type) {
		case tds.LoginAck:
			sawLoginAck = true
		case tds.ServerError:
			if !v.IsInfo {
				return errx.Server(v.Number, v.State, v.Severity, v.ProcName, v.LineNumber, v.Message)
			}
		case tds.Done:
			if v.HasError() || !sawLoginAck {
				return errx.New(errx.KindAuthentication, "extension: login failed")
			}
			return nil
		}
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func appNameOrDefault(name string) string {
	if name != "" {
		return name
	}
	return "mssql-extension"
}
