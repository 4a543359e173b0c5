package queue

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewJobCarriesPayload(t *testing.T) {
	p := MediaVerifyPayload{MediaID: uuid.New(), ObservationID: uuid.New(), Bucket: "b", Key: "observations/x/y.jpg"}
	job, err := newJob(JobTypeMediaVerify, p)
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	require.Equal(t, JobTypeMediaVerify, job.Type)
	require.Zero(t, job.Attempt)

	var got MediaVerifyPayload
	require.NoError(t, json.Unmarshal(job.Payload, &got))
	require.Equal(t, p, got)
}
