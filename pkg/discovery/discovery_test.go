package discovery

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUUID = "2e6a2f6c-5f3e-4c7f-9a57-2b1fd2c3a001"

func TestServerTXT(t *testing.T) {
	info := &ServerInfo{
		UUID:        testUUID,
		Name:        "Lab Server",
		Type:        "TestServer",
		Version:     "0.1",
		Description: "demo",
		Secure:      true,
		Port:        50052,
	}

	strs := TXTRecordsToStrings(EncodeServerTXT(info))
	assert.Equal(t, []string{
		"desc=demo",
		"name=Lab Server",
		"tls=1",
		"type=TestServer",
		"uuid=" + testUUID,
		"version=0.1",
	}, strs)

	decoded, err := DecodeServerTXT(StringsToTXTRecords(strs))
	require.NoError(t, err)
	want := *info
	want.Port = 0
	assert.Equal(t, &want, decoded)
}

func TestServerTXTOmitsOptionalFields(t *testing.T) {
	txt := EncodeServerTXT(&ServerInfo{UUID: testUUID, Name: "n"})
	assert.NotContains(t, txt, TXTKeyDescription)
	assert.NotContains(t, txt, TXTKeyTLS)
}

func TestServerTXTTruncatesLongValues(t *testing.T) {
	long := strings.Repeat("ä", MaxTXTValueLen)
	txt := EncodeServerTXT(&ServerInfo{UUID: testUUID, Name: "n", Description: long})

	desc := txt[TXTKeyDescription]
	assert.LessOrEqual(t, len(desc), MaxTXTValueLen)
	assert.True(t, strings.HasPrefix(long, desc))
	assert.Equal(t, MaxTXTValueLen, len(desc))
}

func TestDecodeServerTXTErrors(t *testing.T) {
	tests := []struct {
		name string
		txt  TXTRecordMap
		want error
	}{
		{"missing uuid", TXTRecordMap{TXTKeyName: "n"}, ErrMissingRequired},
		{"bad uuid", TXTRecordMap{TXTKeyUUID: "nope", TXTKeyName: "n"}, ErrInvalidTXTRecord},
		{"missing name", TXTRecordMap{TXTKeyUUID: testUUID}, ErrMissingRequired},
		{"bad tls flag", TXTRecordMap{TXTKeyUUID: testUUID, TXTKeyName: "n", TXTKeyTLS: "yes"}, ErrInvalidTXTRecord},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeServerTXT(tt.txt)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStringsToTXTRecords(t *testing.T) {
	txt := StringsToTXTRecords([]string{"a=1", "b=x=y", "flag", ""})
	assert.Equal(t, TXTRecordMap{"a": "1", "b": "x=y", "flag": ""}, txt)
}

func TestNewServerService(t *testing.T) {
	text := TXTRecordsToStrings(EncodeServerTXT(&ServerInfo{UUID: testUUID, Name: "Lab"}))

	svc := newServerService(testUUID, "lab.local.", 50052, text, []string{"192.0.2.1"})
	require.NotNil(t, svc)
	assert.Equal(t, testUUID, svc.InstanceName)
	assert.Equal(t, "lab.local.", svc.Host)
	assert.Equal(t, uint16(50052), svc.Port)
	assert.Equal(t, "Lab", svc.Name)
	assert.Equal(t, []string{"192.0.2.1"}, svc.Addresses)

	assert.Nil(t, newServerService("x", "h", 1, []string{"name=only"}, nil))
}

func TestAddressBookkeeping(t *testing.T) {
	addrs := mergeAddresses([]string{"192.0.2.1"}, []string{"192.0.2.1", "fe80::1"})
	assert.Equal(t, []string{"192.0.2.1", "fe80::1"}, addrs)

	addrs = removeAddresses(addrs, []string{"192.0.2.1"})
	assert.Equal(t, []string{"fe80::1"}, addrs)

	assert.Empty(t, removeAddresses(addrs, []string{"fe80::1"}))
}

func TestValidateInstanceName(t *testing.T) {
	assert.NoError(t, ValidateInstanceName(testUUID))
	assert.ErrorIs(t, ValidateInstanceName(""), ErrMissingRequired)
	assert.ErrorIs(t, ValidateInstanceName(strings.Repeat("a", 64)), ErrInstanceNameTooLong)
}

func TestAdvertiserWithoutAnnouncement(t *testing.T) {
	adv := NewMDNSAdvertiser(DefaultAdvertiserConfig())

	assert.False(t, adv.Advertising())
	assert.ErrorIs(t, adv.Update(&ServerInfo{UUID: testUUID}), ErrNotAdvertising)
	assert.NoError(t, adv.Stop())
	assert.NoError(t, adv.Stop())

	err := adv.Advertise(context.Background(), &ServerInfo{UUID: strings.Repeat("a", 64)})
	assert.ErrorIs(t, err, ErrInstanceNameTooLong)
	assert.False(t, adv.Advertising())
}

func TestDefaultConfigs(t *testing.T) {
	assert.Equal(t, BrowseTimeout, DefaultBrowserConfig().BrowseTimeout)
	assert.Positive(t, DefaultAdvertiserConfig().TTL)
	assert.Equal(t, BrowseTimeout, NewMDNSBrowser(BrowserConfig{}).config.BrowseTimeout)
}
