package main

// config module
//

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
)

// Configuration stores server configuration parameters
type Configuration struct {
	// web server parts
	Base      string `json:"base"`       // base URL
	LogFile   string `json:"log_file"`   // server log file
	Port      int    `json:"port"`       // server port number
	Verbose   int    `json:"verbose"`    // verbose output
	StaticDir string `json:"static_dir"` // specify static dir location

	// server parts
	RootCAs       string   `json:"rootCAs"`      // server Root CAs path
	ServerCrt     string   `json:"server_cert"`  // server certificate
	ServerKey     string   `json:"server_key"`   // server certificate
	DomainNames   []string `json:"domain_names"` // LetsEncrypt domain names
	LimiterPeriod string   `json:"rate"`         // limiter rate value

	// database parts
	DBURI       string `json:"db_uri"`       // database server URI
	DBName      string `json:"db_name"`      // database name
	UserColl    string `json:"user_coll"`    // users collection name
	ArtistColl  string `json:"artist_coll"`  // artist catalog collection name
	HistoryColl string `json:"history_coll"` // history ledger collection name

	// storage parts
	StorageDir string `json:"storage_dir"` // blob storage directory
	PublicURL  string `json:"public_url"`  // public base URL for stored blobs

	// model parts
	ModelURL     string   `json:"model_url"`     // model topology URL
	Labels       []string `json:"labels"`        // class label table
	InputHeight  int      `json:"input_height"`  // model input height
	InputWidth   int      `json:"input_width"`   // model input width
	FetchTimeout int      `json:"fetch_timeout"` // network fetch timeout in seconds
	Workers      int      `json:"workers"`       // number of concurrent inference workers

	// upload parts
	MaxUploadSize int64 `json:"max_upload_size"` // max upload payload in bytes

	// auth parts
	JWTSecret   string `json:"jwt_secret"`   // secret used to sign session tokens
	TokenExpiry int    `json:"token_expiry"` // token expiry in hours
	BcryptCost  int    `json:"bcrypt_cost"`  // bcrypt hashing cost
}

// Config variable represents configuration object
var Config Configuration

// default label table of the production classifier, can be overwritten
// through configuration labels option
var defaultLabels = []string{
	"CORE", "Fuchi", "Kamepasta", "Yohki", "Neg",
	"Kouki Haru", "Re°", "Nine", "shigure ui", "sia",
}

// helper function to parse server configuration file
func parseConfig(configFile string) error {
	data, err := os.ReadFile(filepath.Clean(configFile))
	if err != nil {
		log.Println("Unable to read", err)
		return err
	}
	err = json.Unmarshal(data, &Config)
	if err != nil {
		log.Println("Unable to parse", err)
		return err
	}

	// default values
	if Config.Port == 0 {
		Config.Port = 8344
	}
	if Config.LimiterPeriod == "" {
		Config.LimiterPeriod = "100-S"
	}
	if Config.UserColl == "" {
		Config.UserColl = "users"
	}
	if Config.ArtistColl == "" {
		Config.ArtistColl = "artists"
	}
	if Config.HistoryColl == "" {
		Config.HistoryColl = "history"
	}
	if Config.StorageDir == "" {
		Config.StorageDir = "/tmp/artlens"
	}
	if Config.Labels == nil {
		Config.Labels = defaultLabels
	}
	if Config.InputHeight == 0 {
		Config.InputHeight = 224
	}
	if Config.InputWidth == 0 {
		Config.InputWidth = 224
	}
	if Config.FetchTimeout == 0 {
		Config.FetchTimeout = 10
	}
	if Config.Workers == 0 {
		Config.Workers = 4
	}
	if Config.MaxUploadSize == 0 {
		Config.MaxUploadSize = 10 << 20
	}
	if Config.TokenExpiry == 0 {
		Config.TokenExpiry = 24 * 30
	}
	if Config.BcryptCost == 0 {
		Config.BcryptCost = 10
	}
	if Config.StaticDir == "" {
		cdir, err := os.Getwd()
		if err == nil {
			Config.StaticDir = filepath.Join(cdir, "static")
		} else {
			Config.StaticDir = "static"
		}
	}
	return nil
}
