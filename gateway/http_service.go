package gateway

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"sao-files/cache"
	saoclient "sao-files/client"

	"github.com/golang-jwt/jwt"
	logging "github.com/ipfs/go-log/v2"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

var log = logging.Logger("gateway")

var secret = []byte("sao-files gateway")

var merkleRootRe = regexp.MustCompile("^[a-f0-9]{64}$")

type Config struct {
	Enable       bool
	Address      string
	ServerPath   string
	EnableLog    bool
	RequireToken bool
	TokenPeriod  time.Duration
	CacheSize    int
}

func DefaultConfig() Config {
	return Config{
		Enable:       false,
		Address:      "127.0.0.1:5152",
		ServerPath:   "~/.sao-files/gateway",
		EnableLog:    false,
		RequireToken: false,
		TokenPeriod:  24 * time.Hour,
		CacheSize:    1024,
	}
}

// HttpFileServer serves already-downloaded plaintext files over HTTP,
// running the full download pipeline on a cache miss. Decrypted files
// live under ServerPath only as long as the cache keeps them.
type HttpFileServer struct {
	Cfg        Config
	Server     *echo.Echo
	ServerPath string

	client *saoclient.SaoFilesClient
	files  *cache.LruCache
}

type jwtClaims struct {
	Root string `json:"root"`
	jwt.StandardClaims
}

func StartHttpFileServer(serverPath string, cfg Config, client *saoclient.SaoFilesClient) (*HttpFileServer, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	log.Infof("start http server, server path: %s", serverPath)

	if cfg.EnableLog {
		e.Use(middleware.Logger())
		e.Use(middleware.Recover())
	}

	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}

	s := &HttpFileServer{
		Cfg:        cfg,
		Server:     e,
		ServerPath: serverPath,
		client:     client,
		files:      cache.CreateLruCache(cfg.CacheSize),
	}

	e.GET("/test", test)
	e.GET("/v1/:root", s.load)

	go func() {
		err := e.Start(cfg.Address)
		if err != nil {
			if strings.Contains(err.Error(), "Server closed") {
				log.Info("stopping file http service...")
			} else {
				log.Error(err.Error())
			}
		}
	}()
	return s, nil
}

func (hfs *HttpFileServer) Stop(ctx context.Context) error {
	return hfs.Server.Shutdown(ctx)
}

// GenerateToken creates a share token granting time-limited access to
// one merkle root.
func (hfs *HttpFileServer) GenerateToken(root string) (string, string) {
	claims := &jwtClaims{
		root,
		jwt.StandardClaims{
			ExpiresAt: time.Now().Add(hfs.Cfg.TokenPeriod).Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if token == nil {
		log.Error("failed to generate token")
		return "", ""
	}

	tokenStr, err := token.SignedString(secret)
	if err != nil {
		log.Error(err.Error())
		return "", ""
	}

	return hfs.Cfg.Address, tokenStr
}

// validToken accepts a share token signed for the requested root and not
// yet expired.
func (hfs *HttpFileServer) validToken(tokenStr string, root string) bool {
	if tokenStr == "" {
		return false
	}

	claims := &jwtClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil || !token.Valid {
		return false
	}
	return claims.Root == root
}

func test(c echo.Context) error {
	return c.String(http.StatusOK, "Accessible")
}

func (hfs *HttpFileServer) load(ec echo.Context) error {
	root := ec.Param("root")
	if !merkleRootRe.MatchString(root) {
		return ec.String(http.StatusBadRequest, "invalid merkle root")
	}

	if hfs.Cfg.RequireToken {
		if !hfs.validToken(ec.QueryParam("token"), root) {
			return ec.String(http.StatusUnauthorized, "invalid token")
		}
	}

	if cached := hfs.files.Get(root); cached != nil {
		cachedFile := cached.(string)
		if _, err := os.Stat(cachedFile); err == nil {
			return ec.File(cachedFile)
		}
		hfs.files.Evict(root)
	}

	if err := os.MkdirAll(hfs.ServerPath, os.ModePerm); err != nil {
		return err
	}

	target := filepath.Join(hfs.ServerPath, root)
	result, err := hfs.client.Download(ec.Request().Context(), root, target, nil)
	if err != nil {
		if strings.Contains(err.Error(), "status 404") {
			return ec.String(http.StatusNotFound, "file not found")
		}
		return err
	}

	hfs.files.Put(root, target)
	log.Debugf("served %s (%s, %d bytes)", root, result.Name, result.Size)

	return ec.File(target)
}
