package meshchat

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/meshchat/crypto"
	"github.com/opd-ai/meshchat/messaging"
	"github.com/opd-ai/meshchat/transport"
)

// keyStore holds one key exchange per peer.
type keyStore struct {
	mu        sync.RWMutex
	exchanges map[transport.Address]*crypto.KeyExchange
}

func newKeyStore() *keyStore {
	return &keyStore{exchanges: make(map[transport.Address]*crypto.KeyExchange)}
}

func (k *keyStore) getOrCreate(addr transport.Address) *crypto.KeyExchange {
	k.mu.Lock()
	defer k.mu.Unlock()
	kx, ok := k.exchanges[addr]
	if !ok {
		kx = crypto.NewKeyExchange()
		k.exchanges[addr] = kx
	}
	return kx
}

func (k *keyStore) get(addr transport.Address) (*crypto.KeyExchange, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	kx, ok := k.exchanges[addr]
	return kx, ok
}

func (k *keyStore) remove(addr transport.Address) {
	k.mu.Lock()
	delete(k.exchanges, addr)
	k.mu.Unlock()
}

func (k *keyStore) state(addr transport.Address) crypto.State {
	if kx, ok := k.get(addr); ok {
		return kx.State()
	}
	return crypto.StateNoKey
}

// sendKey returns the key to encrypt traffic to addr with, once agreed.
func (k *keyStore) sendKey(addr transport.Address) (*[crypto.KeySize]byte, bool) {
	if kx, ok := k.get(addr); ok {
		return kx.EstablishedKey()
	}
	return nil, false
}

// receiveKey returns any key held for addr, agreed or still in flight.
func (k *keyStore) receiveKey(addr transport.Address) (*[crypto.KeySize]byte, bool) {
	if kx, ok := k.get(addr); ok {
		return kx.Key()
	}
	return nil, false
}

// beginKeyExchange creates the exchange state for addr and returns the
// public key to announce.
func (n *Node) beginKeyExchange(addr transport.Address) ([]byte, bool) {
	pub, err := n.keys.getOrCreate(addr).Initiate()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "beginKeyExchange",
			"peer":     addr.String(),
			"error":    err.Error(),
		}).Warn("Could not start key exchange")
		return nil, false
	}
	return pub, true
}

func (n *Node) sendPublicKey(addr transport.Address, pub []byte) {
	if err := n.sendHandshake(addr, messaging.PublicKey(pub)); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "sendPublicKey",
			"peer":     addr.String(),
			"error":    err.Error(),
		}).Warn("Could not send public key")
	}
}

// handleHandshake advances the key exchange with src. Failures drop the
// message; the peer's retransmissions are the only retry.
func (n *Node) handleHandshake(src transport.Address, cmd messaging.Command) {
	fields := logrus.Fields{
		"function": "handleHandshake",
		"peer":     src.String(),
		"command":  string(cmd.Code),
	}
	kx := n.keys.getOrCreate(src)

	switch cmd.Code {
	case messaging.CmdPublicKey:
		pub, err := cmd.DecodeKey()
		if err != nil {
			logrus.WithFields(fields).WithError(err).Debug("Malformed public key")
			return
		}
		// On simultaneous initiation the lower address answers.
		sealed, err := kx.HandlePublicKey(pub, n.self < src)
		if errors.Is(err, crypto.ErrExchangeInProgress) {
			logrus.WithFields(fields).Debug("Ignoring public key, our initiation has priority")
			return
		}
		if err != nil {
			logrus.WithFields(fields).WithError(err).Warn("Could not answer public key")
			return
		}
		if err := n.sendHandshake(src, messaging.SymmetricKey(sealed)); err != nil {
			logrus.WithFields(fields).WithError(err).Warn("Could not send sealed key")
		}

	case messaging.CmdSymmetricKey:
		sealed, err := cmd.DecodeKey()
		if err != nil {
			logrus.WithFields(fields).WithError(err).Debug("Malformed sealed key")
			return
		}
		if err := kx.HandleSealedKey(sealed); err != nil {
			n.metrics.decryptFailures.Add(1)
			logrus.WithFields(fields).WithError(err).Debug("Sealed key rejected")
			return
		}
		if err := n.sendHandshake(src, messaging.KeyReceived()); err != nil {
			logrus.WithFields(fields).WithError(err).Warn("Could not acknowledge key")
		}

	case messaging.CmdKeyReceived:
		if err := kx.HandleKeyReceived(); err != nil {
			logrus.WithFields(fields).WithError(err).Debug("Key acknowledgement without a key")
		}
	}
}
