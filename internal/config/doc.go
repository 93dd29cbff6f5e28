// Package config loads smarthttp server configuration.
//
// The configuration is stored in smarthttp.json next to the document root.
// Relative paths inside it resolve against the file's directory.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "address": "127.0.0.1",
//	    "port": 5721,
//	    "domain": "www.localhost.com",
//	    "workers": 10,
//	    "documentRoot": "webroot",
//	    "privatePrefix": "/private",
//	    "scriptExtension": "smscr"
//	  },
//	  "session": {
//	    "timeout": "10m",
//	    "store": "sqlite:sessions.db"
//	  },
//	  "mime": { "file": "mime.properties" },
//	  "workers": { "file": "workers.properties" },
//	  "admin": { "address": "127.0.0.1:9090" },
//	  "dev": { "watch": true }
//	}
//
// The older server.properties format is accepted by LoadFile as well.
// The mime and worker tables are key = value properties files:
//
//	# mime.properties
//	html = text/html
//	png = image/png
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Listening on", cfg.ListenAddress())
package config
