package webserver

import (
	"crypto/ecdsa"
	"crypto/x509"
	"net"
	"testing"
	"time"
)

func TestGenerateSelfSignedCert(t *testing.T) {
	cert, err := generateSelfSignedCert()
	if err != nil {
		t.Fatalf("generateSelfSignedCert: %v", err)
	}
	if cert.Leaf == nil {
		t.Fatal("certificate leaf not parsed")
	}

	leaf := cert.Leaf
	if leaf.Subject.CommonName != "swarmix-web" {
		t.Fatalf("common name = %q", leaf.Subject.CommonName)
	}
	if len(leaf.Subject.Organization) != 1 || leaf.Subject.Organization[0] != "Swarmix" {
		t.Fatalf("organization = %v", leaf.Subject.Organization)
	}
	if _, ok := cert.PrivateKey.(*ecdsa.PrivateKey); !ok {
		t.Fatalf("private key type = %T, want ECDSA", cert.PrivateKey)
	}
	if leaf.KeyUsage&x509.KeyUsageDigitalSignature == 0 {
		t.Fatal("missing digital signature key usage")
	}

	if !containsDNSName(leaf, "localhost") {
		t.Fatalf("DNS names = %v, want localhost", leaf.DNSNames)
	}
	if !containsIP(leaf, net.ParseIP("127.0.0.1")) {
		t.Fatalf("IPs = %v, want 127.0.0.1", leaf.IPAddresses)
	}

	if remaining := time.Until(leaf.NotAfter); remaining < 300*24*time.Hour {
		t.Fatalf("certificate expires too soon: %v remaining", remaining)
	}
	if leaf.NotBefore.After(time.Now()) {
		t.Fatal("certificate not yet valid")
	}
}

func TestGenerateSelfSignedCertExtraHosts(t *testing.T) {
	cert, err := generateSelfSignedCert("box.local", "192.168.1.7", "localhost")
	if err != nil {
		t.Fatalf("generateSelfSignedCert: %v", err)
	}
	leaf := cert.Leaf

	if !containsDNSName(leaf, "box.local") {
		t.Fatalf("DNS names = %v, want box.local", leaf.DNSNames)
	}
	if !containsIP(leaf, net.ParseIP("192.168.1.7")) {
		t.Fatalf("IPs = %v, want 192.168.1.7", leaf.IPAddresses)
	}

	// Hosts already covered by the defaults must not duplicate.
	count := 0
	for _, name := range leaf.DNSNames {
		if name == "localhost" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("localhost appears %d times in SANs", count)
	}
}

func containsDNSName(cert *x509.Certificate, name string) bool {
	for _, n := range cert.DNSNames {
		if n == name {
			return true
		}
	}
	return false
}

func containsIP(cert *x509.Certificate, ip net.IP) bool {
	for _, candidate := range cert.IPAddresses {
		if candidate.Equal(ip) {
			return true
		}
	}
	return false
}
