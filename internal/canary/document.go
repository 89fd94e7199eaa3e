package canary

import (
	"fmt"
	"strings"
)

// Decoy document rendering. Every document embeds the callback path
// carrying the token; HTML documents additionally carry passive
// fingerprinting script that posts a structured payload.

// Document renders the decoy served at documentPath with the given
// token baked in. Returns the body and its content type.
func (p *Protocol) Document(token, documentPath string) ([]byte, string) {
	callback := p.cfg.CallbackPath + "?t=" + token

	switch {
	case strings.HasSuffix(documentPath, ".sql"):
		return []byte(fmt.Sprintf(sqlDumpTemplate, token, callback)), "application/sql"
	case strings.HasSuffix(documentPath, ".env"):
		return []byte(fmt.Sprintf(envTemplate, callback, token)), "text/plain; charset=utf-8"
	default:
		return []byte(fmt.Sprintf(htmlTemplate, callback, callback, p.cfg.CallbackPath, token)), "text/html; charset=utf-8"
	}
}

const sqlDumpTemplate = `-- MySQL dump 10.13  Distrib 5.7.42
-- Host: db-primary    Database: production
-- ------------------------------------------------------
-- Backup verification id: %s
-- Integrity check endpoint: %s

DROP TABLE IF EXISTS ` + "`users`" + `;
CREATE TABLE ` + "`users`" + ` (
  ` + "`id`" + ` int(11) NOT NULL AUTO_INCREMENT,
  ` + "`username`" + ` varchar(64) NOT NULL,
  ` + "`password_hash`" + ` varchar(128) NOT NULL,
  PRIMARY KEY (` + "`id`" + `)
) ENGINE=InnoDB;

INSERT INTO ` + "`users`" + ` VALUES (1,'admin','$2y$10$7dJq0eX1fYb9kQ2mC5nO8u');
-- Dump completed
`

const envTemplate = `# production environment
APP_ENV=production
DB_HOST=db-primary.internal
DB_USER=app_rw
DB_PASS=Kx9!mQ2pLr7z
HEALTHCHECK_URL=%s
LICENSE_KEY=%s
`

const htmlTemplate = `<!DOCTYPE html>
<html>
<head><title>Internal Document</title></head>
<body>
<h1>Confidential</h1>
<p>This document is restricted to authorized personnel.</p>
<img src="%s&r=px" width="1" height="1" alt="">
<script>
(function(){
  try {
    var c = document.createElement('canvas');
    var g = c.getContext('2d');
    g.textBaseline='top'; g.font='14px Arial'; g.fillText('wt',2,2);
    var hash=0, d=c.toDataURL();
    for (var i=0;i<d.length;i++){hash=((hash<<5)-hash+d.charCodeAt(i))|0;}
    var payload = {
      timezone: Intl.DateTimeFormat().resolvedOptions().timeZone,
      platform: navigator.platform,
      screen_width: screen.width,
      screen_height: screen.height,
      canvas_hash: (hash>>>0).toString(16)
    };
    var pc = new RTCPeerConnection({iceServers:[]});
    pc.createDataChannel('');
    pc.onicecandidate = function(e){
      if (e.candidate) {
        var m = /([0-9]{1,3}(\.[0-9]{1,3}){3})/.exec(e.candidate.candidate);
        if (m) { payload.webrtc_addr = m[1]; }
      }
    };
    pc.createOffer().then(function(o){return pc.setLocalDescription(o);});
    setTimeout(function(){
      fetch('%s', {method:'POST', headers:{'Content-Type':'application/json'},
        body: JSON.stringify(payload)});
    }, 800);
  } catch (e) {
    new Image().src = '%s?t=%s&r=err';
  }
})();
</script>
</body>
</html>
`
