package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"time"

	"github.com/teamchat/inbox/server/store/types"
)

// Token layout: [8:UID][1:auth level][4:expires][32:signature] == 45 bytes.
const tokenLenDecoded = 45

const minKeyLength = 32

var hmacSalt []byte
var tokenLifetime time.Duration

// TokenInit configures the token signer/verifier.
func TokenInit(key []byte, lifetime time.Duration) error {
	if hmacSalt != nil {
		return errors.New("auth: token scheme already initialized")
	}
	if len(key) < minKeyLength {
		return errors.New("auth: the key is missing or too short")
	}
	if lifetime <= 0 {
		return errors.New("auth: invalid token lifetime")
	}

	hmacSalt = key
	tokenLifetime = lifetime

	return nil
}

// GenSecret creates a new signed token for the given user record.
func GenSecret(rec *Rec) ([]byte, error) {
	if hmacSalt == nil {
		return nil, errors.New("auth: token scheme is not initialized")
	}

	expires := time.Now().Add(tokenLifetime).UTC().Round(time.Millisecond)

	buf := new(bytes.Buffer)
	uidbits, _ := rec.Uid.MarshalBinary()
	binary.Write(buf, binary.LittleEndian, uidbits)
	binary.Write(buf, binary.LittleEndian, uint8(rec.AuthLevel))
	binary.Write(buf, binary.LittleEndian, uint32(expires.Unix()))
	hasher := hmac.New(sha256.New, hmacSalt)
	hasher.Write(buf.Bytes())
	binary.Write(buf, binary.LittleEndian, hasher.Sum(nil))

	token := make([]byte, base64.URLEncoding.EncodedLen(buf.Len()))
	base64.URLEncoding.Encode(token, buf.Bytes())

	return token, nil
}

// AuthenticateToken checks the signature and expiration time of a token and
// extracts the user record from it.
func AuthenticateToken(token []byte) (*Rec, error) {
	if hmacSalt == nil {
		return nil, types.ErrInternal
	}

	data := make([]byte, base64.URLEncoding.DecodedLen(len(token)))
	declen, err := base64.URLEncoding.Decode(data, token)
	if err != nil || declen != tokenLenDecoded {
		return nil, types.ErrMalformed
	}
	data = data[:declen]

	var uid types.Uid
	if err := uid.UnmarshalBinary(data[0:8]); err != nil {
		return nil, types.ErrMalformed
	}

	hasher := hmac.New(sha256.New, hmacSalt)
	hasher.Write(data[:13])
	if !hmac.Equal(data[13:], hasher.Sum(nil)) {
		return nil, types.ErrFailed
	}

	level := Level(data[8])
	if level != LevelAgent && level != LevelAdmin {
		return nil, types.ErrMalformed
	}

	expires := time.Unix(int64(binary.LittleEndian.Uint32(data[9:13])), 0).UTC()
	if expires.Before(time.Now()) {
		return nil, types.ErrFailed
	}

	return &Rec{Uid: uid, AuthLevel: level}, nil
}
