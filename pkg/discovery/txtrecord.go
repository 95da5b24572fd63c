package discovery

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeServerTXT creates the TXT records of a server.
func EncodeServerTXT(info *ServerInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyUUID:    info.UUID,
		TXTKeyName:    truncate(info.Name),
		TXTKeyType:    truncate(info.Type),
		TXTKeyVersion: truncate(info.Version),
	}
	if info.Description != "" {
		txt[TXTKeyDescription] = truncate(info.Description)
	}
	if info.Secure {
		txt[TXTKeyTLS] = "1"
	}
	return txt
}

// DecodeServerTXT parses the TXT records of a server. The port is not part
// of the TXT records and stays zero.
func DecodeServerTXT(txt TXTRecordMap) (*ServerInfo, error) {
	info := &ServerInfo{}

	id, ok := txt[TXTKeyUUID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyUUID)
	}
	if err := uuid.Validate(id); err != nil {
		return nil, fmt.Errorf("%w: uuid %q", ErrInvalidTXTRecord, id)
	}
	info.UUID = id

	if info.Name, ok = txt[TXTKeyName]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyName)
	}
	info.Type = txt[TXTKeyType]
	info.Version = txt[TXTKeyVersion]
	info.Description = txt[TXTKeyDescription]

	switch tls := txt[TXTKeyTLS]; tls {
	case "", "0":
	case "1":
		info.Secure = true
	default:
		return nil, fmt.Errorf("%w: tls %q", ErrInvalidTXTRecord, tls)
	}

	return info, nil
}

func truncate(s string) string {
	if len(s) <= MaxTXTValueLen {
		return s
	}
	// Cut on a rune boundary.
	cut := MaxTXTValueLen
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if found {
			txt[k] = v
		} else if k != "" {
			// Key without value (boolean flag)
			txt[k] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrMissingRequired)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}
