package wordlist

var commonDirs = []string{
	"admin", "administrator", "api", "app", "assets", "auth", "backup",
	"backups", "bin", "cgi-bin", "config", "console", "dashboard", "data",
	"db", "debug", "dev", "docs", "download", "files", "home", "images",
	"include", "includes", "internal", "js", "lib", "log", "login", "logs",
	"manage", "manager", "media", "old", "panel", "phpmyadmin", "portal",
	"private", "public", "rest", "scripts", "secure", "server-status",
	"setup", "sql", "src", "static", "staging", "status", "storage", "system",
	"temp", "test", "tmp", "upload", "uploads", "user", "users", "v1", "v2",
	"vendor", "web", "wp-admin", "wp-content", ".git", ".svn", ".env",
}

// commonFiles are requested as-is, relative to the target base.
var commonFiles = []string{
	"robots.txt", "sitemap.xml", ".git/config", ".git/HEAD", ".env",
	".env.local", ".htaccess", ".htpasswd", "config.php", "web.config",
	"phpinfo.php", "info.php", "test.php", "admin.php", "login.php",
	"backup.sql", "database.sql", "dump.sql", "composer.json", "package.json",
	"crossdomain.xml", ".well-known/security.txt", "wp-config.php.bak",
	"appsettings.json", "docker-compose.yml", ".DS_Store", "server-status",
}

var apiPaths = []string{
	"api/", "api/v1/", "api/v2/", "rest/", "graphql", "graphiql",
	"swagger", "swagger-ui/", "swagger.json", "openapi.json", "api-docs",
	"v2/api-docs", ".well-known/openid-configuration", "health", "healthz",
	"status", "version", "metrics", "actuator", "actuator/health",
	"actuator/env", "debug/pprof/", "oauth/token", "api/users", "api/me",
}

var backupFiles = []string{
	"backup.zip", "backup.tar.gz", "backup.sql", "backup.bak", "site.zip",
	"www.zip", "db.sql", "dump.sql", "old.zip", "archive.zip", "src.zip",
}

var extensions = []string{
	".php", ".asp", ".aspx", ".jsp", ".do", ".html", ".htm", ".xml",
	".json", ".txt", ".zip", ".tar.gz", ".bak", ".old", ".orig", ".swp",
	".tmp", ".log", ".sql", ".db", ".conf", ".config", ".ini", ".yml",
}

var params = []string{
	"id", "page", "q", "search", "query", "user", "username", "email",
	"token", "key", "redirect", "return", "url", "next", "goto", "dest",
	"file", "path", "include", "template", "view", "lang", "callback",
}

var directoryWords = func() map[string]struct{} {
	m := make(map[string]struct{}, len(commonDirs))
	for _, d := range commonDirs {
		m[d] = struct{}{}
	}
	return m
}()

// paramNames are candidate query and form parameter names, grouped loosely
// by what they usually control.
var paramNames = []string{
	// identity and credentials
	"id", "uid", "user", "username", "user_id", "userid", "email", "login",
	"password", "pass", "token", "access_token", "api_key", "apikey", "key",
	"secret", "session", "sid", "jwt", "auth",
	// object references
	"uuid", "guid", "ref", "account", "account_id", "order_id", "doc_id",
	"item", "product", "pk",
	// listing
	"page", "limit", "offset", "size", "per_page", "sort", "order",
	"order_by", "filter", "search", "q", "query", "fields", "include",
	"expand", "select",
	// actions
	"action", "cmd", "command", "op", "mode", "type", "method", "step",
	"exec", "run", "do",
	// files and includes
	"file", "filename", "path", "dir", "folder", "template", "tpl",
	"page_name", "lang", "locale", "theme", "download", "load", "view",
	// redirects and callbacks
	"url", "uri", "redirect", "redirect_url", "return", "return_url",
	"returnUrl", "next", "continue", "goto", "callback", "dest", "target",
	"host", "domain", "feed", "proxy",
	// output shaping
	"format", "output", "json", "xml", "jsonp", "pretty", "raw",
	// debugging and feature switches
	"debug", "test", "admin", "dev", "verbose", "trace", "show", "hidden",
	"internal", "preview", "draft", "beta", "feature", "enable", "disable",
	"cache", "nocache", "source", "src", "config", "env",
	// roles
	"role", "roles", "group", "permission", "scope", "level", "is_admin",
	"isAdmin", "privilege", "access",
	// framework tokens
	"_method", "_format", "_token", "csrf", "csrf_token", "_csrf",
	"XDEBUG_SESSION_START", "__debug__", "version", "v", "api_version",
}
