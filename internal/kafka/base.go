package kafka

import (
	"crypto/tls"
	"time"

	"github.com/Shopify/sarama"
	"github.com/flexprice/entitlements/internal/config"
	"github.com/xdg-go/scram"
)

const (
	producerRetries      = 5
	producerRetryBackoff = 100 * time.Millisecond
	offsetCommitInterval = 5 * time.Second
)

// GetSaramaConfig returns the client config shared by the balance event
// publisher and subscriber. Events for one customer land on one partition, so
// the hash partitioner is kept and every publish waits for the full ISR ack.
func GetSaramaConfig(cfg *config.Configuration) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_1_0_0
	sc.ClientID = cfg.Kafka.ClientID

	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = producerRetries
	sc.Producer.Retry.Backoff = producerRetryBackoff

	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Offsets.AutoCommit.Enable = true
	sc.Consumer.Offsets.AutoCommit.Interval = offsetCommitInterval

	if cfg.Kafka.TLS {
		enableTLS(sc)
	}
	if cfg.Kafka.UseSASL {
		applySASL(sc, cfg.Kafka)
	}
	return sc
}

func enableTLS(sc *sarama.Config) {
	sc.Net.TLS.Enable = true
	sc.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
}

// applySASL always turns TLS on; credentials never travel in the clear.
func applySASL(sc *sarama.Config, kc config.KafkaConfig) {
	if !sc.Net.TLS.Enable {
		enableTLS(sc)
	}
	sc.Net.SASL.Enable = true
	sc.Net.SASL.Mechanism = kc.SASLMechanism
	sc.Net.SASL.User = kc.SASLUser
	sc.Net.SASL.Password = kc.SASLPassword

	if gen, ok := scramHashes[kc.SASLMechanism]; ok {
		sc.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
			return &scramClient{hashGen: gen}
		}
	}
}

var scramHashes = map[sarama.SASLMechanism]scram.HashGeneratorFcn{
	sarama.SASLTypeSCRAMSHA256: scram.SHA256,
	sarama.SASLTypeSCRAMSHA512: scram.SHA512,
}

// scramClient adapts an xdg-go conversation to sarama.SCRAMClient.
type scramClient struct {
	hashGen scram.HashGeneratorFcn
	conv    *scram.ClientConversation
}

func (c *scramClient) Begin(user, password, authzID string) error {
	client, err := c.hashGen.NewClient(user, password, authzID)
	if err != nil {
		return err
	}
	c.conv = client.NewConversation()
	return nil
}

func (c *scramClient) Step(challenge string) (string, error) {
	return c.conv.Step(challenge)
}

func (c *scramClient) Done() bool {
	return c.conv.Done()
}
