// Package cmng builds nRF91 %CMNG credential commands from PEM files and the
// digests used to verify them after writing.
package cmng

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/atbench/internal/parsed"
	"github.com/danmuck/atbench/internal/parsers"
	"github.com/danmuck/atbench/internal/protocol"
	"github.com/danmuck/atbench/internal/rules"
)

var (
	ErrNotPEM      = errors.New("cmng: content is not PEM")
	ErrEmptyBundle = errors.New("cmng: bundle has no credentials")
)

// Opcodes of AT%CMNG.
const (
	OpWrite  = 0
	OpList   = 1
	OpRead   = 2
	OpDelete = 3
)

// Type is the %CMNG credential type.
type Type int

const (
	TypeRootCA     Type = 0
	TypeClientCert Type = 1
	TypeClientKey  Type = 2
)

func (t Type) String() string {
	switch t {
	case TypeRootCA:
		return "root CA"
	case TypeClientCert:
		return "client certificate"
	case TypeClientKey:
		return "client key"
	default:
		return fmt.Sprintf("type %d", int(t))
	}
}

// NormalizePEM converts CRLF to LF and drops trailing newlines.
func NormalizePEM(pem string) string {
	return strings.TrimRight(strings.ReplaceAll(pem, "\r\n", "\n"), "\n")
}

// MakeWrite returns AT%CMNG=0,<tag>,<type>,"\n<pem>". The newline after the
// opening quote is stored by the modem and is part of the digest.
func MakeWrite(secTag int64, typ Type, pem string) (string, error) {
	if !strings.HasPrefix(strings.TrimLeft(pem, " \t\r\n"), "-----BEGIN") {
		return "", fmt.Errorf("%w: %s must start with -----BEGIN", ErrNotPEM, typ)
	}
	return fmt.Sprintf("AT%%CMNG=%d,%d,%d,\"\n%s\"", OpWrite, secTag, int(typ), NormalizePEM(pem)), nil
}

// ListCommand returns the command that reports the stored digest.
func ListCommand(secTag int64, typ Type) string {
	return fmt.Sprintf("AT%%CMNG=%d,%d,%d", OpList, secTag, int(typ))
}

// PEMSHA returns the uppercase SHA-256 the modem reports for pem.
func PEMSHA(pem string) string {
	sum := sha256.Sum256([]byte("\n" + NormalizePEM(pem)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Bundle holds the PEM text of one security tag. Empty members are skipped.
type Bundle struct {
	RootCA     string
	ClientCert string
	ClientKey  string
}

// LoadBundle reads PEM files; an empty path leaves the member empty.
func LoadBundle(rootCA, clientCert, clientKey string) (Bundle, error) {
	var b Bundle
	for _, f := range []struct {
		path string
		dst  *string
	}{
		{rootCA, &b.RootCA},
		{clientCert, &b.ClientCert},
		{clientKey, &b.ClientKey},
	} {
		if strings.TrimSpace(f.path) == "" {
			continue
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			return Bundle{}, fmt.Errorf("cmng: read %s: %w", f.path, err)
		}
		*f.dst = string(data)
	}
	return b, nil
}

type credential struct {
	typ Type
	pem string
}

func (b Bundle) credentials() []credential {
	var out []credential
	for _, c := range []credential{{TypeRootCA, b.RootCA}, {TypeClientCert, b.ClientCert}, {TypeClientKey, b.ClientKey}} {
		if strings.TrimSpace(c.pem) != "" {
			out = append(out, c)
		}
	}
	return out
}

// SHAMap returns the expected digest per present credential type.
func (b Bundle) SHAMap() map[Type]string {
	out := make(map[Type]string, 3)
	for _, c := range b.credentials() {
		out[c.typ] = PEMSHA(c.pem)
	}
	return out
}

// Plan is the command list and rules for writing and verifying a bundle.
type Plan struct {
	SecTag   int64
	Commands []string
	Limits   rules.Set
}

// WriteName is the display name of the write result for typ.
func WriteName(secTag int64, typ Type) string {
	return fmt.Sprintf("Write cert sec_tag=%d pos=%d", secTag, int(typ))
}

// SHAName is the display name of the digest check for typ.
func SHAName(typ Type) string {
	return fmt.Sprintf("SHA cert %d", int(typ))
}

// Prepare builds the write commands followed by the list commands and
// registers their parsers on reg, replacing any earlier registration for the
// same commands.
func Prepare(reg *parsers.Registry, secTag int64, b Bundle) (Plan, error) {
	creds := b.credentials()
	if len(creds) == 0 {
		return Plan{}, ErrEmptyBundle
	}
	plan := Plan{SecTag: secTag, Limits: rules.Set{}}
	var reads []string
	for _, c := range creds {
		write, err := MakeWrite(secTag, c.typ, c.pem)
		if err != nil {
			return Plan{}, err
		}
		writeName := WriteName(secTag, c.typ)
		if err := reg.Register(write, writeName, StoreStatus, parsers.WithOverride()); err != nil {
			return Plan{}, err
		}
		if err := plan.Limits.Add(writeName, rules.Equals(parsed.String(string(protocol.StatusOK)))); err != nil {
			return Plan{}, err
		}
		plan.Commands = append(plan.Commands, write)

		read := ListCommand(secTag, c.typ)
		shaName := SHAName(c.typ)
		if err := reg.Register(read, shaName, parsers.SHADigest, parsers.WithOverride()); err != nil {
			return Plan{}, err
		}
		if err := plan.Limits.Add(shaName, rules.Equals(parsed.String(PEMSHA(c.pem)))); err != nil {
			return Plan{}, err
		}
		reads = append(reads, read)
	}
	plan.Commands = append(plan.Commands, reads...)
	return plan, nil
}

// StoreStatus parses a credential write: the value is the status token so a
// rule can require "OK".
func StoreStatus(reply string, status protocol.Status) (parsed.Result, bool) {
	desc := "stored"
	if !status.OK() {
		desc = "not stored"
		if reply != "" {
			desc += ": " + reply
		}
	}
	return parsed.Result{Value: parsed.String(status.String()), Description: desc}, status.OK()
}
