package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ValidateInitData verifies Telegram WebApp init_data: HMAC over the sorted
// key=value pairs with a bot-token derived key, plus a freshness check on
// auth_date to stop replays. Returns the Telegram user id on success.
func ValidateInitData(initData, botToken string) (int64, bool) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return 0, false
	}

	hash := values.Get("hash")
	if hash == "" {
		return 0, false
	}
	values.Del("hash")

	var dataCheck []string
	for k, v := range values {
		dataCheck = append(dataCheck, k+"="+strings.Join(v, ""))
	}
	sort.Strings(dataCheck)
	dataString := strings.Join(dataCheck, "\n")

	keyGen := hmac.New(sha256.New, []byte("WebAppData"))
	keyGen.Write([]byte(botToken))
	secret := keyGen.Sum(nil)

	h := hmac.New(sha256.New, secret)
	h.Write([]byte(dataString))
	calculated := h.Sum(nil)

	provided, err := hex.DecodeString(hash)
	if err != nil || !hmac.Equal(calculated, provided) {
		return 0, false
	}

	authDateStr := values.Get("auth_date")
	if authDateStr == "" {
		return 0, false
	}
	authDate, err := strconv.ParseInt(authDateStr, 10, 64)
	if err != nil {
		return 0, false
	}
	now := time.Now().Unix()
	// allow small clock skew, but reject anything older than 1 hour
	if now-authDate > 3600 || authDate-now > 300 {
		return 0, false
	}

	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return 0, false
	}
	return user.ID, true
}
