// SPDX-License-Identifier: MIT

package validators

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/vaultstream/assetforge/internal/backend"
	"github.com/vaultstream/assetforge/internal/log"
)

const defaultClamdDialTimeout = 5 * time.Second

// eicarSignature is the standard 68-byte antivirus test signature,
// split so this source file does not itself trip a scanner.
var eicarSignature = []byte("X5O!P%@AP[4\\PZX54(P^)7CC)7}$EICAR" + "-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*")

// Virus scans assets for malware. With a configured clamd address it
// streams the file over the INSTREAM protocol; otherwise it falls back
// to a built-in scan for the EICAR test signature. A detection is a
// ValidationError; an unreachable daemon is an execution fault so the
// pipeline can retry or fall back.
type Virus struct {
	cfg Config
}

// NewVirus creates the virus validator backend.
func NewVirus(cfg Config) *Virus {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultClamdDialTimeout
	}
	return &Virus{cfg: cfg}
}

func (v *Virus) Describe() backend.Descriptor {
	return descriptor("virus", v.cfg)
}

func (v *Virus) Execute(ctx context.Context, req backend.Request) (*backend.StageResult, error) {
	st, err := os.Stat(req.InputPath)
	if err != nil {
		return nil, fmt.Errorf("stat input: %w", err)
	}

	scanner := "builtin"
	if v.cfg.ClamdAddress != "" {
		scanner = "clamd"
		if err := v.scanClamd(ctx, req.InputPath); err != nil {
			return nil, err
		}
	} else if err := v.scanBuiltin(req.InputPath); err != nil {
		return nil, err
	}

	log.WithComponentFromContext(ctx, "validate.virus").Debug().
		Str("event", "virus.clean").
		Str(log.FieldPath, req.InputPath).
		Str("scanner", scanner).
		Msg("no threat detected")

	return &backend.StageResult{
		BytesIn:  st.Size(),
		BytesOut: st.Size(),
		Metadata: map[string]string{"scanner": scanner},
	}, nil
}

func (v *Virus) scanBuiltin(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	found, err := containsSignature(f, eicarSignature)
	if err != nil {
		return fmt.Errorf("scan input: %w", err)
	}
	if found {
		return &backend.ValidationError{
			BackendID: "virus",
			Rule:      "virus",
			Reason:    "EICAR test signature detected",
		}
	}
	return nil
}

// scanClamd streams the file to clamd via INSTREAM: a "zINSTREAM\0"
// command, then length-prefixed chunks, then a zero-length terminator.
// clamd answers "stream: OK" or "stream: <signature> FOUND".
func (v *Virus) scanClamd(ctx context.Context, path string) error {
	dialer := net.Dialer{Timeout: v.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", v.cfg.ClamdAddress)
	if err != nil {
		return fmt.Errorf("%w: dial clamd %s: %v", backend.ErrUnavailable, v.cfg.ClamdAddress, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	if _, err := conn.Write([]byte("zINSTREAM\x00")); err != nil {
		return fmt.Errorf("send INSTREAM command: %w", err)
	}

	buf := make([]byte, 32*1024)
	sizeBuf := make([]byte, 4)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			binary.BigEndian.PutUint32(sizeBuf, uint32(n))
			if _, err := conn.Write(sizeBuf); err != nil {
				return fmt.Errorf("send chunk header: %w", err)
			}
			if _, err := conn.Write(buf[:n]); err != nil {
				return fmt.Errorf("send chunk: %w", err)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return fmt.Errorf("read input: %w", rerr)
		}
	}
	if _, err := conn.Write([]byte{0, 0, 0, 0}); err != nil {
		return fmt.Errorf("send stream terminator: %w", err)
	}

	resp, err := bufio.NewReader(conn).ReadString('\x00')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read clamd response: %w", err)
	}
	return parseClamdResponse(strings.TrimSpace(strings.TrimSuffix(resp, "\x00")))
}

func parseClamdResponse(resp string) error {
	switch {
	case strings.HasSuffix(resp, "OK"):
		return nil
	case strings.HasSuffix(resp, "FOUND"):
		sig := strings.TrimSuffix(strings.TrimPrefix(resp, "stream: "), " FOUND")
		return &backend.ValidationError{
			BackendID: "virus",
			Rule:      "virus",
			Reason:    fmt.Sprintf("clamd detected %s", sig),
		}
	case resp == "":
		return fmt.Errorf("%w: empty clamd response", backend.ErrUnavailable)
	}
	return fmt.Errorf("clamd error: %s", resp)
}

// containsSignature scans r in chunks, keeping a signature-sized overlap
// between reads so a match spanning a chunk boundary is still seen.
func containsSignature(r io.Reader, sig []byte) (bool, error) {
	const chunkSize = 64 * 1024
	buf := make([]byte, chunkSize+len(sig)-1)
	keep := 0
	for {
		n, err := r.Read(buf[keep:])
		if n > 0 {
			window := buf[:keep+n]
			if bytes.Contains(window, sig) {
				return true, nil
			}
			if len(window) >= len(sig)-1 {
				keep = copy(buf, window[len(window)-(len(sig)-1):])
			} else {
				keep = len(window)
			}
		}
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
}
