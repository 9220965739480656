package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arnavshah/ward-census-api/pkg/database"
	"github.com/arnavshah/ward-census-api/pkg/models"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidRole        = errors.New("invalid role")
)

// BcryptCost is the work factor for stored password hashes
var BcryptCost = 14

// TokenTTL is how long an issued dashboard token stays valid
var TokenTTL = 24 * time.Hour

var jwtAlgorithm = jwt.SigningMethodHS256

// Claims represents the JWT claims
type Claims struct {
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	WardID   string      `json:"ward_id,omitempty"`
	jwt.RegisteredClaims
}

// UserContext returns the caller identity carried by the token
func (c *Claims) UserContext() models.UserContext {
	return models.UserContext{Username: c.Username, Role: c.Role, WardID: c.WardID}
}

// Authenticator signs and verifies dashboard tokens and ingestion keys
type Authenticator struct {
	jwtSecret    []byte
	masterSecret []byte
}

// New creates an Authenticator. jwtSecret signs dashboard tokens,
// masterSecret signs ingestion API keys.
func New(jwtSecret, masterSecret string) *Authenticator {
	return &Authenticator{jwtSecret: []byte(jwtSecret), masterSecret: []byte(masterSecret)}
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with its hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CreateToken creates a new JWT token for a user
func (a *Authenticator) CreateToken(user models.UserContext) (string, error) {
	now := time.Now()
	claims := &Claims{
		Username: user.Username,
		Role:     user.Role,
		WardID:   user.WardID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwtAlgorithm, claims)
	return token.SignedString(a.jwtSecret)
}

// VerifyToken verifies a JWT token
func (a *Authenticator) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwtAlgorithm {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Login checks a username and password against the dashboard_users table
func Login(db *gorm.DB, username, password string) (*database.DashboardUser, error) {
	var user database.DashboardUser
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// UserContextOf converts a stored user into the caller identity
func UserContextOf(u *database.DashboardUser) models.UserContext {
	return models.UserContext{Username: u.Username, Role: models.Role(u.Role), WardID: u.WardID}
}

// CreateUser stores a dashboard user. Nurses must be bound to a ward.
func CreateUser(db *gorm.DB, username, password string, role models.Role, wardID string) (*database.DashboardUser, error) {
	switch role {
	case models.RoleAdmin, models.RoleSupervisor:
		wardID = ""
	case models.RoleNurse:
		if wardID == "" {
			return nil, fmt.Errorf("%w: nurse requires a ward", ErrInvalidRole)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := database.DashboardUser{
		Username:     username,
		PasswordHash: hash,
		Role:         string(role),
		WardID:       wardID,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

// EnsureAdminExists creates an admin from the given credentials when no
// admin user exists yet
func EnsureAdminExists(db *gorm.DB, username, password string, logger *zap.Logger) error {
	var count int64
	if err := db.Model(&database.DashboardUser{}).Where("role = ?", string(models.RoleAdmin)).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	if username == "" {
		username = "admin"
	}
	if password == "" {
		password = "admin123"
	}

	if _, err := CreateUser(db, username, password, models.RoleAdmin, ""); err != nil {
		return err
	}
	if logger != nil {
		logger.Info("Default admin user created", zap.String("username", username))
	}
	return nil
}

// GenerateHMACKey creates a signed API key using HMAC-SHA256
func (a *Authenticator) GenerateHMACKey(clientID string) string {
	return clientID + "." + a.sign(clientID)
}

// VerifyHMACKey validates an HMAC-signed API key and returns its client id.
// The signature is hex, so the last "." separates it from client ids that
// contain dots themselves.
func (a *Authenticator) VerifyHMACKey(key string) (string, error) {
	i := strings.LastIndex(key, ".")
	if i <= 0 || i == len(key)-1 {
		return "", errors.New("invalid key format")
	}

	clientID, signature := key[:i], key[i+1:]
	if !hmac.Equal([]byte(signature), []byte(a.sign(clientID))) {
		return "", errors.New("invalid signature")
	}
	return clientID, nil
}

func (a *Authenticator) sign(clientID string) string {
	h := hmac.New(sha256.New, a.masterSecret)
	h.Write([]byte(clientID))
	return hex.EncodeToString(h.Sum(nil))
}

// TrackAPIKey fetches or creates the key record and stamps its last use
func TrackAPIKey(db *gorm.DB, key, clientID string) (*database.APIKey, error) {
	var apiKey database.APIKey
	if err := db.Where(database.APIKey{Key: key}).FirstOrCreate(&apiKey, database.APIKey{
		Key:  key,
		Name: clientID,
	}).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	if err := db.Model(&apiKey).Update("last_used", now).Error; err != nil {
		return nil, err
	}
	apiKey.LastUsed = &now
	return &apiKey, nil
}
