package store

import (
	"crypto/tls"
	"crypto/x509"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// kafkaSecurity собирает SASL/PLAIN и TLS (managed Kafka требует TLS вместе с SASL)
func kafkaSecurity(username, password, caCert string) (sasl.Mechanism, *tls.Config) {
	var mechanism sasl.Mechanism
	if username != "" && password != "" {
		mechanism = plain.Mechanism{Username: username, Password: password}
	}

	if mechanism == nil && caCert == "" {
		return nil, nil
	}

	// RootCAs == nil - системные сертификаты
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if caCert != "" {
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM([]byte(caCert)) {
			tlsConfig.RootCAs = pool
		} else {
			log.Printf("⚠️ Kafka: не удалось распарсить CA сертификат, используем системные сертификаты")
		}
	}
	return mechanism, tlsConfig
}

// CreateKafkaDialer создает dialer для Kafka reader с поддержкой SASL/PLAIN и TLS
func CreateKafkaDialer(username, password, caCert string) *kafka.Dialer {
	mechanism, tlsConfig := kafkaSecurity(username, password, caCert)
	if mechanism != nil {
		log.Printf("🔐 Kafka: SASL/PLAIN аутентификация включена (username: %s)", username)
	}
	return &kafka.Dialer{
		Timeout:       10 * time.Second,
		DualStack:     true,
		SASLMechanism: mechanism,
		TLS:           tlsConfig,
	}
}

// createKafkaTransport - то же для kafka.Writer
func createKafkaTransport(username, password, caCert string) *kafka.Transport {
	mechanism, tlsConfig := kafkaSecurity(username, password, caCert)
	return &kafka.Transport{
		DialTimeout: 10 * time.Second,
		SASL:        mechanism,
		TLS:         tlsConfig,
	}
}

// ParseKafkaBrokers парсит строку с брокерами через запятую
func ParseKafkaBrokers(brokers string) []string {
	var result []string
	for _, broker := range strings.Split(strings.ReplaceAll(brokers, " ", ""), ",") {
		if broker != "" {
			result = append(result, broker)
		}
	}
	return result
}
