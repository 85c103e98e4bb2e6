package challenge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

func (s *ChallengeService) CreateTeam(ctx context.Context, req *TeamRequest) (*Team, error) {
	err := req.Validate()
	if err != nil {
		return nil, err
	}

	existing, err := s.Teams.TeamOf(ctx, req.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to look up team of %s: %w", req.Key, err)
	}

	if existing != nil {
		return existing, fmt.Errorf("%w: %s", ErrAlreadyInTeam, existing.ID)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate team id: %w", err)
	}

	team := &Team{
		ID:        id.String(),
		Name:      req.Name,
		Key:       req.Key,
		Members:   []string{req.Key},
		CreatedAt: s.now(),
	}

	err = s.Teams.CreateTeam(ctx, team)
	if err != nil {
		return nil, fmt.Errorf("failed to store team: %w", err)
	}

	return team, nil
}

// AddTeamMember adds a wallet to the team owned by req.Key.
func (s *ChallengeService) AddTeamMember(ctx context.Context, req *TeamMemberRequest) (*Team, error) {
	err := req.Validate()
	if err != nil {
		return nil, err
	}

	owned, err := s.Teams.TeamOf(ctx, req.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to look up team of %s: %w", req.Key, err)
	}

	if owned == nil || owned.Key != req.Key || (req.TeamID != "" && owned.ID != req.TeamID) {
		return nil, ErrNotTeamOwner
	}

	current, err := s.Teams.TeamOf(ctx, req.Member)
	if err != nil {
		return nil, fmt.Errorf("failed to look up team of %s: %w", req.Member, err)
	}

	if current != nil && current.ID != owned.ID {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInTeam, current.ID)
	}

	//nolint:wrapcheck
	return s.Teams.AddTeamMember(ctx, owned.ID, req.Member)
}

func (s *ChallengeService) TeamOf(ctx context.Context, wallet string) (*Team, error) {
	//nolint:wrapcheck
	return s.Teams.TeamOf(ctx, wallet)
}
