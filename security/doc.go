// Package security holds the TLS configuration shared by https connectors
// and HTTP clients.
//
//	server:
//	  applicationConnectors:
//	    - type: https
//	      port: 8443
//	      tls:
//	        certFile: /etc/hello/tls.crt
//	        keyFile: /etc/hello/tls.key
//	        minVersion: "1.3"
package security
