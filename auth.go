package main

// auth module provides user registration, login and session token
// validation for protected end-points
//

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"
)

// name of the session token cookie
const tokenCookie = "token"

// authClaims represents session token claims
type authClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// issueToken signs a session token for given username
func issueToken(username string) (string, error) {
	now := time.Now()
	claims := authClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(Config.TokenExpiry) * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(Config.JWTSecret))
}

// validateToken parses and verifies given session token, returns the
// authenticated username
func validateToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &authClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(Config.JWTSecret), nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*authClaims)
	if !ok || !token.Valid || claims.Username == "" {
		return "", errors.New("invalid session token")
	}
	return claims.Username, nil
}

// requestToken extracts session token from Authorization header or
// from the token cookie
func requestToken(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); authz != "" {
		return strings.TrimSpace(strings.Replace(authz, "Bearer ", "", 1))
	}
	if cookie, err := r.Cookie(tokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// requestUser authenticates incoming HTTP request
func requestUser(r *http.Request) (string, error) {
	token := requestToken(r)
	if token == "" {
		return "", errors.New("missing session token")
	}
	return validateToken(token)
}

// authMiddleware guards protected end-points, unauthenticated requests
// receive a 401 error envelope
func authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := requestUser(r); err != nil {
			respondError(w, r, userError("auth", SessionError, err))
			return
		}
		next(w, r)
	}
}

// RegisterHandler handles new user registration
func RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &creds); err != nil {
		respondError(w, r, userError("auth", BadRequest, err))
		return
	}
	if creds.Username == "" || creds.Password == "" {
		respondError(w, r, userError("auth", BadRequest, errors.New("username and password are required")))
		return
	}
	if MongoCount(Config.DBName, Config.UserColl, bson.M{"username": creds.Username}) > 0 {
		respondError(w, r, userError("auth", BadRequest, fmt.Errorf("username %q is already taken", creds.Username)))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), Config.BcryptCost)
	if err != nil {
		respondError(w, r, stageError("auth", GenericError, err))
		return
	}
	user := User{
		ID:       uuid.New().String(),
		Username: creds.Username,
		Password: string(hash),
	}
	if err := MongoInsert(Config.DBName, Config.UserColl, []any{user}); err != nil {
		respondError(w, r, stageError("auth", DatabaseError, err))
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{
		"user_id":  user.ID,
		"username": user.Username,
	})
}

// LoginHandler handles user login, on success it issues a session
// token returned in the response body and as an httpOnly cookie
func LoginHandler(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &creds); err != nil {
		respondError(w, r, userError("auth", BadRequest, err))
		return
	}
	var user User
	err := MongoFindOne(Config.DBName, Config.UserColl, bson.M{"username": creds.Username}, &user)
	if err == mgo.ErrNotFound {
		respondError(w, r, userError("auth", SessionError, errors.New("invalid username or password")))
		return
	}
	if err != nil {
		respondError(w, r, stageError("auth", DatabaseError, err))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(creds.Password)); err != nil {
		respondError(w, r, userError("auth", SessionError, errors.New("invalid username or password")))
		return
	}
	token, err := issueToken(user.Username)
	if err != nil {
		respondError(w, r, stageError("auth", GenericError, err))
		return
	}
	// keep the issued token on the user record
	spec := bson.M{"username": user.Username}
	if err := MongoUpdate(Config.DBName, Config.UserColl, spec, bson.M{"$set": bson.M{"token": token}}); err != nil {
		respondError(w, r, stageError("auth", DatabaseError, err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		HttpOnly: true,
		MaxAge:   Config.TokenExpiry * 3600,
		Path:     "/",
	})
	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Login successful",
		"token":   token,
	})
}

// ProfileHandler confirms the caller holds a valid session
func ProfileHandler(w http.ResponseWriter, r *http.Request) {
	user, err := requestUser(r)
	if err != nil {
		respondError(w, r, userError("auth", SessionError, err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"message":  "You are authenticated",
		"username": user,
	})
}
