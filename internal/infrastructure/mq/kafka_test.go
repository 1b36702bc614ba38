package mq

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestProducer_Send(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"invoice_id":1}` {
			return errors.New("unexpected payload")
		}
		return nil
	})
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducer(sp, zap.NewNop())
	assert.NoError(t, p.Send("invoice_document", "k1", `{"invoice_id":1}`))
	assert.ErrorIs(t, p.Send("invoice_document", "k2", "x"), sarama.ErrOutOfBrokers)
	assert.NoError(t, p.Close())
}
