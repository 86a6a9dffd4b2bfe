package user

import (
	"testing"
	"time"
)

func TestMakeVerifyToken(t *testing.T) {
	gen := newTokenGenerator("secret", 3*24*time.Hour)

	now := time.Now()
	usr := User{
		ID:        "0b5c3f4e-54b1-4bd4-8b1f-6a3c3e1c9a10",
		Name:      "T",
		Username:  "t",
		Email:     "t@test.test",
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: now,
	}
	_ = usr.SetPassword("pwd")

	validToken := gen.makeToken(usr)

	// generate an expired token
	dayLate := gen.timeout + (24 * time.Hour)
	gen.now = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken := gen.makeToken(usr)
	gen.now = time.Now // reset

	// a new login invalidates previous tokens
	loggedInAgain := usr
	loggedInAgain.LastLogin = now.Add(time.Minute)

	tests := []struct {
		name    string
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", usr: usr, wantErr: errInvalidToken},
		{name: "invalid parts len", usr: usr, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base32", usr: usr, token: "hahaha-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid timestamp", usr: usr, token: "NRXWY-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid token", usr: usr, token: "HE4TS-sigsig-sig", wantErr: errInvalidToken},
		{name: "expired token", usr: usr, token: expiredToken, wantErr: errTokenExpired},
		{name: "stale token", usr: loggedInAgain, token: validToken, wantErr: errInvalidToken},
		{name: "valid token", usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := gen.verifyToken(tt.usr, tt.token); err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEncodeDecodeUID(t *testing.T) {
	usr := User{ID: "0b5c3f4e-54b1-4bd4-8b1f-6a3c3e1c9a10"}
	id, err := decodeUID(EncodeUID(usr))
	if err != nil {
		t.Fatalf("decodeUID() error = %v", err)
	}
	if id != usr.ID {
		t.Errorf("decodeUID() = %v, want %v", id, usr.ID)
	}
}
