package model

// ===== 关系库行对象 =====
//
// 账号与群组关系在 PostgreSQL 里, 网关只读:
//
// CREATE TABLE users (
//   id              VARCHAR PRIMARY KEY,
//   username        VARCHAR(50)  NOT NULL UNIQUE,
//   email           VARCHAR(255) NOT NULL UNIQUE,
//   hashed_password VARCHAR(255) NOT NULL,
//   is_active       BOOLEAN      NOT NULL DEFAULT TRUE,
//   is_superuser    BOOLEAN      NOT NULL DEFAULT FALSE,
//   avatar_url      VARCHAR(500)
// );
//
// CREATE TABLE groups (
//   id       VARCHAR PRIMARY KEY,
//   name     VARCHAR(100) NOT NULL,
//   owner_id VARCHAR NOT NULL REFERENCES users(id) ON DELETE CASCADE
// );
//
// CREATE TABLE channels (
//   id          VARCHAR PRIMARY KEY,
//   name        VARCHAR(100) NOT NULL,
//   group_id    VARCHAR NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
//   type        VARCHAR(10)  NOT NULL DEFAULT 'TEXT',
//   description VARCHAR(500)
// );
//
// CREATE TABLE memberships (
//   id       VARCHAR PRIMARY KEY,
//   user_id  VARCHAR NOT NULL REFERENCES users(id) ON DELETE CASCADE,
//   group_id VARCHAR NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
//   role     VARCHAR(20) NOT NULL DEFAULT 'member',
//   UNIQUE (user_id, group_id)
// );

// 频道类型
const (
	ChannelTypeText   = "TEXT"
	ChannelTypeVoice  = "VOICE"
	ChannelTypeTodo   = "TODO"
	ChannelTypeDoc    = "DOC"
	ChannelTypeKanban = "KANBAN"
	ChannelTypeVideo  = "VIDEO"
)

// 成员角色
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
	RoleViewer = "viewer"
)

// User 账号行, 准入只关心是否存在与是否停用
type User struct {
	ID          string
	Username    string
	Email       string
	IsActive    bool
	IsSuperuser bool
	AvatarURL   string // NULL 读出来是空串
}

// Channel 频道行, group_id 决定成员归属
type Channel struct {
	ID          string
	Name        string
	GroupID     string
	Type        string // TEXT/VOICE/TODO/DOC/KANBAN/VIDEO
	Description string
}
