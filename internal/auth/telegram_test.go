package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"
)

const testBotToken = "12345:test-bot-token"

// signInitData builds a valid init_data query string for the given fields.
func signInitData(fields map[string]string, botToken string) string {
	var pairs []string
	for k, v := range fields {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	dataString := strings.Join(pairs, "\n")

	keyGen := hmac.New(sha256.New, []byte("WebAppData"))
	keyGen.Write([]byte(botToken))
	h := hmac.New(sha256.New, keyGen.Sum(nil))
	h.Write([]byte(dataString))

	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	values.Set("hash", hex.EncodeToString(h.Sum(nil)))
	return values.Encode()
}

func freshFields(userID int64) map[string]string {
	return map[string]string{
		"auth_date": fmt.Sprintf("%d", time.Now().Unix()),
		"query_id":  "AAEtest",
		"user":      fmt.Sprintf(`{"id":%d,"first_name":"Test"}`, userID),
	}
}

func TestValidateInitDataAccepted(t *testing.T) {
	initData := signInitData(freshFields(42), testBotToken)

	userID, ok := ValidateInitData(initData, testBotToken)
	if !ok {
		t.Fatal("valid init data rejected")
	}
	if userID != 42 {
		t.Fatalf("user id %d", userID)
	}
}

func TestValidateInitDataWrongToken(t *testing.T) {
	initData := signInitData(freshFields(42), "99999:other-token")

	if _, ok := ValidateInitData(initData, testBotToken); ok {
		t.Fatal("init data signed with another bot token accepted")
	}
}

func TestValidateInitDataTamperedUser(t *testing.T) {
	initData := signInitData(freshFields(42), testBotToken)

	// swap the user payload while keeping the original hash
	values, err := url.ParseQuery(initData)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	values.Set("user", `{"id":43,"first_name":"Mallory"}`)
	if _, ok := ValidateInitData(values.Encode(), testBotToken); ok {
		t.Fatal("tampered init data accepted")
	}
}

func TestValidateInitDataStale(t *testing.T) {
	fields := freshFields(42)
	fields["auth_date"] = fmt.Sprintf("%d", time.Now().Add(-2*time.Hour).Unix())
	initData := signInitData(fields, testBotToken)

	if _, ok := ValidateInitData(initData, testBotToken); ok {
		t.Fatal("stale init data accepted")
	}
}

func TestValidateInitDataMissingHash(t *testing.T) {
	if _, ok := ValidateInitData("auth_date=123&user=%7B%22id%22%3A1%7D", testBotToken); ok {
		t.Fatal("init data without a hash accepted")
	}
}

func TestValidateInitDataMissingUser(t *testing.T) {
	fields := map[string]string{
		"auth_date": fmt.Sprintf("%d", time.Now().Unix()),
	}
	initData := signInitData(fields, testBotToken)

	if _, ok := ValidateInitData(initData, testBotToken); ok {
		t.Fatal("init data without a user accepted")
	}
}
