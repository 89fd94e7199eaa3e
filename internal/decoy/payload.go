package decoy

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Template pools for fabricated content. Nothing here corresponds to a
// real system.
var (
	fakeTables = []string{
		"users", "accounts", "customer_billing", "api_credentials",
		"session_tokens", "payment_methods", "admin_audit",
	}
	fakeUsers = []string{
		"svc_backup", "dbadmin", "jenkins_ci", "root_app", "etl_runner",
	}
	fakeHosts = []string{
		"db-primary.internal.corp", "vault-01.prod.lan",
		"backup-nas.dc2.local", "auth-svc.k8s.internal",
	}
	fakePaths = []string{
		"/var/lib/app/secrets.yml", "/etc/app/production.env",
		"/opt/backups/2024-q3/full.sql.gz", "/srv/keys/deploy_rsa",
	}
	fakeServers = []string{
		"Apache/2.4.29 (Ubuntu)", "nginx/1.14.0", "Microsoft-IIS/8.5",
		"Apache-Coyote/1.1", "LiteSpeed",
	}
)

const hexDigits = "0123456789abcdef"

// Generator produces randomized deceptive content. Selection is pseudo-
// random from fixed pools; with a non-zero seed the output sequence is
// deterministic for tests.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator creates a Generator. A zero seed uses the clock.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

func (g *Generator) pick(pool []string) string {
	return pool[g.rnd.Intn(len(pool))]
}

func (g *Generator) hexString(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = hexDigits[g.rnd.Intn(len(hexDigits))]
	}
	return string(buf)
}

// SQLErrorPayload fabricates a database error body shaped like a
// careless production leak, for requests classified as injection
// probes.
func (g *Generator) SQLErrorPayload() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()

	table := g.pick(fakeTables)
	host := g.pick(fakeHosts)
	user := g.pick(fakeUsers)
	body := map[string]interface{}{
		"error":   "ER_PARSE_ERROR",
		"code":    1064,
		"message": fmt.Sprintf("You have an error in your SQL syntax near 'FROM %s' at line 1", table),
		"query":   fmt.Sprintf("SELECT id, username, password_hash FROM %s WHERE id = ?", table),
		"server":  host,
		"user":    fmt.Sprintf("%s@10.%d.%d.%d", user, g.rnd.Intn(256), g.rnd.Intn(256), g.rnd.Intn(256)),
		"dsn":     fmt.Sprintf("mysql://%s:%s@%s:3306/production", user, g.hexString(12), host),
		"trace":   fmt.Sprintf("/srv/app/db/query.go:%d", 100+g.rnd.Intn(400)),
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return []byte(`{"error":"ER_PARSE_ERROR","code":1064}`)
	}
	return raw
}

// InternalErrorPayload fabricates an over-sharing stack-trace style
// error body with plausible internal identifiers and paths.
func (g *Generator) InternalErrorPayload() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()

	body := map[string]interface{}{
		"status":     "error",
		"request_id": g.hexString(16),
		"message":    "unhandled exception in upstream service",
		"service":    g.pick(fakeHosts),
		"config":     g.pick(fakePaths),
		"api_key":    "sk_live_" + g.hexString(24),
		"build":      fmt.Sprintf("v2.%d.%d-internal", g.rnd.Intn(9), g.rnd.Intn(20)),
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return []byte(`{"status":"error"}`)
	}
	return raw
}

// Terminal control sequences that render inert in browsers but disturb
// naive terminal log viewers. Served only to flagged identities.
const terminalNoise = "\x1b[2J\x1b[H\x07\x1b]0;system\x07"

// NoiseHeaders returns fabricated server-identity headers. For flagged
// identities it additionally carries control-sequence values.
func (g *Generator) NoiseHeaders(flagged bool) map[string]string {
	g.mu.Lock()
	server := g.pick(fakeServers)
	requestID := g.hexString(16)
	g.mu.Unlock()

	headers := map[string]string{
		"Server":         server,
		"X-Powered-By":   "PHP/5.6.40",
		"X-Request-Id":   requestID,
		"X-Cache-Status": "MISS",
	}
	if flagged {
		headers["X-Debug-Info"] = terminalNoise
	}
	return headers
}
