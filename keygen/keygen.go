// Command line utility for generating server signing keys and session tokens.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/teamchat/inbox/server/auth"
	"github.com/teamchat/inbox/server/store/types"
)

func main() {
	var keySize = flag.Int("keysize", 0, "Generate a random key of this many bytes, base64-encoded.")
	var hmacKey = flag.String("key", "", "Base64-encoded HMAC signing key to mint or validate tokens with.")
	var userId = flag.String("uid", "", "User ID to mint a token for.")
	var levelName = flag.String("level", "agent", "Authorization level to embed into the token: agent or admin.")
	var lifetime = flag.Int("lifetime", 1209600, "Token lifetime in seconds.")
	var token = flag.String("validate", "", "Token to validate.")

	flag.Parse()

	var exitCode int
	if *keySize > 0 {
		exitCode = genKey(*keySize)
	} else if *userId != "" {
		exitCode = mint(*hmacKey, *userId, *levelName, *lifetime)
	} else if *token != "" {
		exitCode = validate(*hmacKey, *token)
	} else {
		flag.Usage()
		exitCode = 1
	}
	os.Exit(exitCode)
}

func genKey(size int) int {
	key := make([]byte, size)
	if _, err := rand.Read(key); err != nil {
		fmt.Println("Failed to generate the key:", err)
		return 1
	}
	fmt.Println(base64.StdEncoding.EncodeToString(key))
	return 0
}

func initTokens(hmacKey string, lifetime int) error {
	key, err := base64.StdEncoding.DecodeString(hmacKey)
	if err != nil {
		return fmt.Errorf("failed to decode the signing key: %w", err)
	}
	return auth.TokenInit(key, time.Duration(lifetime)*time.Second)
}

func mint(hmacKey, userId, levelName string, lifetime int) int {
	if err := initTokens(hmacKey, lifetime); err != nil {
		fmt.Println(err)
		return 1
	}

	uid := types.ParseUid(userId)
	if uid.IsZero() {
		fmt.Println("Invalid user ID:", userId)
		return 1
	}

	level := auth.ParseAuthLevel(levelName)
	if level != auth.LevelAgent && level != auth.LevelAdmin {
		fmt.Println("Invalid authorization level:", levelName)
		return 1
	}

	token, err := auth.GenSecret(&auth.Rec{Uid: uid, AuthLevel: level})
	if err != nil {
		fmt.Println("Failed to generate the token:", err)
		return 1
	}

	fmt.Printf("Token for %s (%s): %s\n", userId, level.String(), token)
	return 0
}

func validate(hmacKey, token string) int {
	// Lifetime is irrelevant for verification but must be positive.
	if err := initTokens(hmacKey, 1); err != nil {
		fmt.Println(err)
		return 1
	}

	rec, err := auth.AuthenticateToken([]byte(token))
	if err != nil {
		fmt.Println("INVALID:", err)
		return 1
	}

	fmt.Printf("Valid for %s (%s)\n", rec.Uid.String(), rec.AuthLevel.String())
	return 0
}
