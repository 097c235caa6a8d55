package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"LIBRA-backend/internal/platform/config"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// sqliteDriver は LOWER() を Unicode 対応に差し替えた sqlite3。
// 組み込みの LOWER は ASCII しか変換しないので、検索結果が MySQL / メモリと食い違う
const sqliteDriver = "sqlite3_libra"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("lower", unicodeLower, true)
		},
	})
}

// Caser は goroutine 間で共有できないので毎回作る
func unicodeLower(s string) string { return cases.Lower(language.Und).String(s) }

func Connect(c config.DatabaseConfig) (*sql.DB, error) {
	switch c.Driver {
	case config.DriverMySQL:
		return connectMySQL(c)
	case config.DriverSQLite:
		return connectSQLite(c.Path)
	default:
		return nil, fmt.Errorf("driver %q has no SQL connection", c.Driver)
	}
}

// mysqlDSN は接続文字列を組み立てる。clientFoundRows で UPDATE の件数を
// 「変更行」ではなく「一致行」にし、SQLite と揃える
func mysqlDSN(c config.DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.User = c.Username
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	mc.DBName = c.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Timeout = 3 * time.Second
	mc.ReadTimeout = 5 * time.Second
	mc.WriteTimeout = 5 * time.Second
	mc.ClientFoundRows = true
	return mc.FormatDSN()
}

func connectMySQL(c config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(config.DriverMySQL, mysqlDSN(c))
	if err != nil {
		return nil, fmt.Errorf("接続準備に失敗: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("DB接続に失敗: %w", err)
	}

	// 接続プール（合算がMySQLの max_connections を超えないよう配分する）
	db.SetMaxOpenConns(80)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// connectSQLite opens (or creates) the database file at path.
func connectSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_journal_mode=WAL", path)
	db, err := sql.Open(sqliteDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// 書き込みは1本に直列化する（SQLITE_BUSY 回避）
	db.SetMaxOpenConns(1)

	return db, nil
}

// Migrate applies the embedded schema for driver. Every statement is
// idempotent (CREATE ... IF NOT EXISTS), so it is safe to run on each start.
func Migrate(ctx context.Context, conn *sql.DB, driver string) error {
	buf, err := schemaFS.ReadFile("schema/" + driver + ".sql")
	if err != nil {
		return fmt.Errorf("no schema for driver %q: %w", driver, err)
	}

	return RunInTx(ctx, conn, nil, func(ctx context.Context, tx DBTX) error {
		for _, stmt := range splitStatements(string(buf)) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration: %w", err)
			}
		}
		return nil
	})
}

func splitStatements(src string) []string {
	var out []string
	for _, part := range strings.Split(src, ";") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "--") {
				continue
			}
			lines = append(lines, line)
		}
		stmt := strings.TrimSpace(strings.Join(lines, "\n"))
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
